// Package integrity computes and checks the tamper-evident checksum of a credential.
//
// The checksum covers identity, snapshot, status and expiration. Verification
// counters, history and the public URL are deliberately outside the digest so
// routine verification does not invalidate it.
package integrity

import (
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
	"slices"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"fedcred/internal/credential/models"
)

// Field is one canonical name/value pair fed to the digest.
type Field struct {
	Name  string
	Value string
}

// Codec is safe for concurrent use.
type Codec struct {
	key []byte
}

// NewCodec builds a codec. An empty key gives plain BLAKE2b-256; keys longer than 64 bytes are rejected.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("checksum key must be at most %d bytes", blake2b.Size)
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Codec{key: k}, nil
}

// CanonicalFields returns the digest input for a credential, sorted by field name.
func CanonicalFields(id models.CredentialID, issued time.Time, snap models.Snapshot, status models.Status, expiration time.Time) []Field {
	fields := []Field{
		{"id", id.String()},
		{"subjectUserId", snap.SubjectUserID.String()},
		{"subjectType", snap.SubjectType.String()},
		{"issuedDate", CanonicalTime(issued)},
		{"fullName", snap.FullName},
		{"stateId", snap.StateID.String()},
		{"stateName", snap.StateName},
		{"federationIdNumber", snap.FederationIDNumber},
		{"nationality", snap.Nationality},
		{"ranking", snap.Ranking},
		{"clubName", snap.ClubName},
		{"level", snap.Level},
		{"status", status.String()},
		{"expirationDate", CanonicalTime(expiration)},
	}
	slices.SortFunc(fields, func(a, b Field) int { return strings.Compare(a.Name, b.Name) })
	return fields
}

// CanonicalTime renders t at second precision in UTC.
func CanonicalTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ComputeChecksum digests the canonical fields of the given snapshot, status and expiration.
func (c *Codec) ComputeChecksum(id models.CredentialID, issued time.Time, snap models.Snapshot, status models.Status, expiration time.Time) string {
	return c.digest(CanonicalFields(id, issued, snap, status, expiration))
}

// Compute digests a credential's current fields.
func (c *Codec) Compute(cred *models.Credential) string {
	return c.ComputeChecksum(cred.ID, cred.IssuedDate, cred.Snapshot, cred.Status, cred.ExpirationDate)
}

// Seal recomputes and stores the checksum on cred.
func (c *Codec) Seal(cred *models.Credential) {
	cred.Checksum = c.Compute(cred)
}

// VerifyChecksum reports whether the stored checksum matches the record.
func (c *Codec) VerifyChecksum(cred *models.Credential) bool {
	return Equal(cred.Checksum, c.Compute(cred))
}

// Equal compares two hex checksums in constant time, ignoring case.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
}

func (c *Codec) digest(fields []Field) string {
	h := c.newHash()
	var lenBuf [4]byte
	write := func(s string) {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
		_, _ = h.Write(lenBuf[:])
		_, _ = h.Write([]byte(s))
	}
	for _, f := range fields {
		write(f.Name)
		write(f.Value)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Codec) newHash() hash.Hash {
	var key []byte
	if len(c.key) > 0 {
		key = c.key
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// Key length is validated in NewCodec.
		panic(err)
	}
	return h
}
