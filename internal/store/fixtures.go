package store

import (
	"context"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"fknsrs.biz/p/playlister/internal/ctxlogger"
	"fknsrs.biz/p/playlister/models"
)

// Fixtures is a data set used to reset a store to a known state. Playlists
// name their owner by email.
type Fixtures struct {
	Users     []models.User     `yaml:"users"`
	Playlists []models.Playlist `yaml:"playlists"`
}

func ReadFixtures(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("store.ReadFixtures: could not parse fixtures: %w", err)
	}

	return &f, nil
}

type FixtureReport struct {
	Users     int
	Playlists int
	Failed    int
}

// LoadFixtures wipes s and fills it from f. A record that cannot be created is
// logged and skipped; only failures of the store itself abort the load.
func LoadFixtures(ctx context.Context, s Store, f *Fixtures) (*FixtureReport, error) {
	l := ctxlogger.GetLogger(ctx)

	if err := s.Clear(ctx); err != nil {
		return nil, fmt.Errorf("store.LoadFixtures: could not clear store: %w", err)
	}

	l.Info("store cleared")

	var report FixtureReport

	for i := range f.Users {
		if _, err := s.CreateUser(ctx, &f.Users[i]); err != nil {
			l.WithError(err).WithField("user.email", f.Users[i].Email).Warn("could not load fixture user")
			report.Failed++
			continue
		}

		report.Users++
	}

	for i := range f.Playlists {
		p := &f.Playlists[i]

		fl := l.WithFields(logrus.Fields{
			"playlist.name":        p.Name,
			"playlist.owner_email": p.OwnerEmail,
		})

		owner, err := s.GetUserByEmail(ctx, p.OwnerEmail)
		if err != nil {
			return &report, fmt.Errorf("store.LoadFixtures: could not look up owner %q: %w", p.OwnerEmail, err)
		}
		if owner == nil {
			fl.Warn("could not load fixture playlist: owner does not exist")
			report.Failed++
			continue
		}

		if _, err := s.CreatePlaylist(ctx, p, owner.ID); err != nil {
			fl.WithError(err).Warn("could not load fixture playlist")
			report.Failed++
			continue
		}

		report.Playlists++
	}

	l.WithFields(logrus.Fields{
		"fixtures.users":     report.Users,
		"fixtures.playlists": report.Playlists,
		"fixtures.failed":    report.Failed,
	}).Info("fixtures loaded")

	return &report, nil
}
