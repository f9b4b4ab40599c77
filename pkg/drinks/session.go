package drinks

import (
	"maps"
	"sort"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/drinktrack/drinktrack/pkg/catalog"
)

// ErrInvalidSession marks validation failures of a session form.
var ErrInvalidSession = errors.New("invalid session")

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{Time: cbor.TimeRFC3339Nano, Sort: cbor.SortCanonical}.EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Session is the drinking session form of one user. The whole form is submitted on every change.
type Session struct {
	ID        string         `json:"id" cbor:"1,keyasint"`
	UserID    string         `json:"user_id" cbor:"2,keyasint"`
	Counts    map[string]int `json:"counts" cbor:"3,keyasint,omitempty"`
	StartedAt time.Time      `json:"started_at" cbor:"4,keyasint"`
	UpdatedAt time.Time      `json:"updated_at" cbor:"5,keyasint"`
}

// NewSession starts an empty session for the user.
func NewSession(userID string, now time.Time) Session {
	now = now.UTC()
	return Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Counts:    map[string]int{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// WithDefaults fills what a client may omit: the session id, the timestamps and the counts map.
// Drink kinds are normalized, merging counts of kinds that differ only in spelling.
func (s Session) WithDefaults(now time.Time) Session {
	c := s
	c.Counts = make(map[string]int, len(s.Counts))
	for kind, n := range s.Counts {
		c.Counts[catalog.Normalize(kind)] += n
	}
	now = now.UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = now
	}
	return c
}

// Add returns a copy of the session with n drinks of kind added. Counts never drop below zero.
func (s Session) Add(kind string, n int, now time.Time) Session {
	kind = catalog.Normalize(kind)
	c := s.Clone()
	v := c.Counts[kind] + n
	if v <= 0 {
		delete(c.Counts, kind)
	} else {
		c.Counts[kind] = v
	}
	c.UpdatedAt = now.UTC()
	return c
}

// Total is the number of drinks in the session.
func (s Session) Total() int {
	t := 0
	for _, n := range s.Counts {
		t += n
	}
	return t
}

// Units sums alcohol units over the session. Kinds missing from the catalog count as zero.
func (s Session) Units(c *catalog.Catalog) float64 {
	u := 0.0
	for kind, n := range s.Counts {
		if d, ok := c.Lookup(kind); ok {
			u += float64(n) * d.Units()
		}
	}
	return u
}

// Kinds returns the kinds present in the session in lexical order.
func (s Session) Kinds() []string {
	kinds := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (s Session) Validate(c *catalog.Catalog) error {
	if strings.TrimSpace(s.UserID) == "" {
		return errors.Wrap(ErrInvalidSession, "empty user id")
	}
	if s.ID != "" {
		if _, err := uuid.Parse(s.ID); err != nil {
			return errors.Wrapf(ErrInvalidSession, "malformed session id '%s'", s.ID)
		}
	}
	for _, kind := range s.Kinds() {
		if s.Counts[kind] < 0 {
			return errors.Wrapf(ErrInvalidSession, "negative count of '%s'", kind)
		}
		if _, ok := c.Lookup(kind); !ok {
			return errors.Wrapf(ErrInvalidSession, "unknown drink kind '%s'", kind)
		}
	}
	if !s.StartedAt.IsZero() && s.UpdatedAt.Before(s.StartedAt) {
		return errors.Wrap(ErrInvalidSession, "session updated before it started")
	}
	return nil
}

// record has the fields of Session without its methods, so the CBOR codec does not recurse into
// MarshalBinary/UnmarshalBinary.
type record Session

func (s Session) MarshalBinary() ([]byte, error) {
	b, err := encMode.Marshal(record(s))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session")
	}
	return b, nil
}

func (s *Session) UnmarshalBinary(data []byte) error {
	var tmp record
	if err := decMode.Unmarshal(data, &tmp); err != nil {
		return errors.Wrap(err, "failed to unmarshal session")
	}
	tmp.StartedAt = tmp.StartedAt.UTC()
	tmp.UpdatedAt = tmp.UpdatedAt.UTC()
	if tmp.Counts == nil {
		tmp.Counts = map[string]int{}
	}
	*s = Session(tmp)
	return nil
}

// Clone returns a deep copy of the session.
func (s Session) Clone() Session {
	c := s
	c.Counts = make(map[string]int, len(s.Counts))
	maps.Copy(c.Counts, s.Counts)
	return c
}
