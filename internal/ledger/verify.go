package ledger

import (
	"io"
)

// #region verify-chain
// VerifyChain recomputes every digest from the initial Keyframe. It needs
// nothing but the serialized records.
func VerifyChain(records []Record) Verdict {
	if len(records) == 0 {
		return corrupt(0, "missing keyframe")
	}
	prev := GenesisDigest
	for i, rec := range records {
		pos := uint64(i)
		if !isHexDigest(rec.Digest) {
			return corrupt(pos, "malformed digest")
		}
		want, err := chainDigest(rec.Body, prev)
		if err != nil {
			return corrupt(pos, err.Error())
		}
		if want != rec.Digest {
			return corrupt(pos, "digest mismatch")
		}
		env, err := decodeEnvelope(rec.Body)
		if err != nil {
			return corrupt(pos, "malformed body")
		}
		switch {
		case env.Position != pos:
			return corrupt(pos, "position out of order")
		case env.Prev != prev:
			return corrupt(pos, "broken prev link")
		case pos == 0 && env.Kind != KindKeyframe:
			return corrupt(pos, "first entry is not a keyframe")
		case pos > 0 && env.Kind == KindKeyframe:
			return corrupt(pos, "keyframe after genesis")
		case rec.Kind != "" && rec.Kind != env.Kind:
			return corrupt(pos, "kind mismatch")
		}
		if _, err := decodeEntry(env.Kind, env.Entry); err != nil {
			return corrupt(pos, "malformed entry")
		}
		prev = rec.Digest
	}
	return Verdict{Valid: true}
}

// VerifyStream verifies a ledger serialized with WriteStream.
func VerifyStream(r io.Reader) Verdict {
	records, pos, err := ReadStream(r)
	if err != nil {
		// Records before the framing error may themselves be corrupt.
		if v := VerifyChain(records); !v.Valid && len(records) > 0 {
			return v
		}
		return corrupt(pos, err.Error())
	}
	return VerifyChain(records)
}

// #endregion verify-chain

// #region helpers
func corrupt(pos uint64, reason string) Verdict {
	return Verdict{Valid: false, CorruptAt: pos, Reason: reason}
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// #endregion helpers
