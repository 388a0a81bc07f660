package ledger

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// #region encode
// encodeRecord serializes e at position and chains it to prev.
func encodeRecord(position uint64, prev string, at time.Time, e Entry) (Record, error) {
	body, err := json.Marshal(envelope{
		Position: position,
		Kind:     e.Kind(),
		Prev:     prev,
		At:       at.UTC(),
		Entry:    e,
	})
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	digest, err := chainDigest(body, prev)
	if err != nil {
		return Record{}, err
	}
	return Record{Position: position, Kind: e.Kind(), Body: body, Digest: digest}, nil
}

// chainDigest returns hex(sha256(body || prev)).
func chainDigest(body []byte, prev string) (string, error) {
	prevRaw, err := hex.DecodeString(prev)
	if err != nil || len(prevRaw) != sha256.Size {
		return "", fmt.Errorf("%w: bad prev digest %q", ErrMalformedRecord, prev)
	}
	h := sha256.New()
	h.Write(body)
	h.Write(prevRaw)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Digest returns the hex SHA-256 of b. Used for constraint, origin and payload commitments.
func Digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// #endregion encode

// #region decode
type rawEnvelope struct {
	Position uint64          `json:"position"`
	Kind     Kind            `json:"kind"`
	Prev     string          `json:"prev"`
	At       time.Time       `json:"at"`
	Entry    json.RawMessage `json:"entry"`
}

func decodeEnvelope(body []byte) (rawEnvelope, error) {
	var env rawEnvelope
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		return rawEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	if dec.More() {
		return rawEnvelope{}, fmt.Errorf("%w: trailing data", ErrMalformedRecord)
	}
	return env, nil
}

func decodeEntry(kind Kind, raw json.RawMessage) (Entry, error) {
	var target Entry
	switch kind {
	case KindKeyframe:
		var k Keyframe
		if err := strictUnmarshal(raw, &k); err != nil {
			return nil, err
		}
		target = k
	case KindDeltaBridge:
		var b DeltaBridge
		if err := strictUnmarshal(raw, &b); err != nil {
			return nil, err
		}
		target = b
	case KindDeltaReturn:
		var r DeltaReturn
		if err := strictUnmarshal(raw, &r); err != nil {
			return nil, err
		}
		target = r
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrMalformedRecord, kind)
	}
	return target, nil
}

func strictUnmarshal(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

// Entry decodes the typed entry carried by the record body.
func (r Record) Entry() (Entry, error) {
	env, err := decodeEnvelope(r.Body)
	if err != nil {
		return nil, err
	}
	return decodeEntry(env.Kind, env.Entry)
}

// At returns the append timestamp stored in the record body.
func (r Record) At() (time.Time, error) {
	env, err := decodeEnvelope(r.Body)
	if err != nil {
		return time.Time{}, err
	}
	return env.At, nil
}

// #endregion decode

// #region stream
// WriteStream writes records as "body TAB digest LF" lines.
func WriteStream(w io.Writer, records []Record) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, rec := range records {
		c, err := bw.Write(rec.Body)
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("write record %d: %w", rec.Position, err)
		}
		c, err = bw.WriteString("\t" + rec.Digest + "\n")
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("write record %d: %w", rec.Position, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush: %w", err)
	}
	return n, nil
}

// ReadStream parses a serialized ledger. On a framing error it returns the
// records read so far and the position of the offending line.
func ReadStream(r io.Reader) ([]Record, uint64, error) {
	br := bufio.NewReader(r)
	var records []Record
	for pos := uint64(0); ; pos++ {
		line, err := br.ReadBytes('\n')
		if err == io.EOF {
			if len(line) == 0 {
				return records, pos, nil
			}
			return records, pos, fmt.Errorf("%w: unterminated record", ErrMalformedRecord)
		}
		if err != nil {
			return records, pos, fmt.Errorf("read record %d: %w", pos, err)
		}
		line = line[:len(line)-1]
		tab := bytes.LastIndexByte(line, '\t')
		if tab < 0 {
			return records, pos, fmt.Errorf("%w: missing digest separator", ErrMalformedRecord)
		}
		body := make([]byte, tab)
		copy(body, line[:tab])
		records = append(records, Record{
			Position: pos,
			Body:     body,
			Digest:   string(line[tab+1:]),
		})
	}
}

// #endregion stream
