package systems

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/quasilyte/gdata"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const profileKey = "profile"

// Profile is what a client remembers between runs.
type Profile struct {
	ClientToken  string `json:"clientToken"`
	PlayerName   string `json:"playerName"`
	LastServer   string `json:"lastServer"`
	SessionToken string `json:"sessionToken,omitempty"` // KCP resume
}

// itemStore is the subset of *gdata.Manager the profile needs.
type itemStore interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// ProfileStore loads and saves the Profile under the user's data directory.
type ProfileStore struct {
	items  itemStore
	logger *zap.Logger
}

// OpenProfileStore opens the gdata storage for appName.
func OpenProfileStore(appName string, logger *zap.Logger) (*ProfileStore, error) {
	m, err := gdata.Open(gdata.Config{
		AppName: appName,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "open profile storage %q", appName)
	}
	return newProfileStore(m, logger), nil
}

func newProfileStore(items itemStore, logger *zap.Logger) *ProfileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileStore{items: items, logger: logger.Named("profile")}
}

// Load returns the saved profile. A missing or unreadable profile, or one
// whose client token is not a uuid, gets a fresh token.
func (s *ProfileStore) Load() Profile {
	var p Profile

	data, err := s.items.LoadItem(profileKey)
	switch {
	case err != nil:
		s.logger.Warn("could not load profile", zap.Error(err))
	case len(data) > 0:
		if err := json.Unmarshal(data, &p); err != nil {
			s.logger.Warn("could not parse saved profile", zap.Error(err))
			p = Profile{}
		}
	}

	if _, err := uuid.Parse(p.ClientToken); err != nil {
		p.ClientToken = uuid.NewString()
		p.SessionToken = ""
		s.logger.Info("new client token", zap.String("token", p.ClientToken))
	}
	return p
}

func (s *ProfileStore) Save(p Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "serialize profile")
	}
	if err := s.items.SaveItem(profileKey, data); err != nil {
		return eris.Wrap(err, "save profile")
	}
	return nil
}
