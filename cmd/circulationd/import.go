package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/jonathangreen/circulation/circulation"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrInvalidCollectionFile is returned when a collection file cannot be imported.
var ErrInvalidCollectionFile = errors.New("invalid collection file")

type collectionFile struct {
	CollectionID uuid.UUID  `json:"collection_id" validate:"required"`
	Pools        []poolFile `json:"pools" validate:"dive"`
}

type poolFile struct {
	ID              uuid.UUID     `json:"id"`
	Identifier      string        `json:"identifier" validate:"required"`
	OpenAccess      bool          `json:"open_access"`
	UnlimitedAccess bool          `json:"unlimited_access"`
	Licenses        []licenseFile `json:"licenses" validate:"dive"`
}

type licenseFile struct {
	ID                 uuid.UUID  `json:"id"`
	Identifier         string     `json:"identifier" validate:"required"`
	CheckoutURL        string     `json:"checkout_url" validate:"required"`
	StatusURL          string     `json:"status_url" validate:"omitempty,url"`
	TermsConcurrency   int        `json:"terms_concurrency" validate:"gte=1"`
	CheckoutsLeft      *int       `json:"checkouts_left" validate:"omitempty,gte=0"`
	CheckoutsAvailable *int       `json:"checkouts_available" validate:"omitempty,gte=0"`
	Expires            *time.Time `json:"expires"`
}

type importedPool struct {
	pool     circulation.LicensePool
	licenses []circulation.License
}

// PoolSaver stores a pool with its licenses.
type PoolSaver interface {
	SaveLicensePool(ctx context.Context, pool circulation.LicensePool, licenses []circulation.License) error
}

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <collection.json>",
		Short: "Add the pools and licenses of a collection file to the ledger",
		Long: "Add the pools and licenses of a collection file to the ledger.\n" +
			"Pool counters are computed from the licenses, so only import pools without loans or holds.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd.Flags())
			if err != nil {
				return err
			}

			cfg, err := loadDatabaseConfig(v)
			if err != nil {
				return err
			}

			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			pools, err := parseCollectionFile(raw, time.Now().UTC())
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), v.GetString("log-level")).With("command", "import")
			ctx := cmd.Context()

			ledger, closeLedger, err := openLedger(ctx, cfg, observers{logger: logger})
			if err != nil {
				return err
			}
			defer closeLedger()

			if err := importPools(ctx, ledger, pools); err != nil {
				return err
			}

			logger.Info("collection imported", "pools", len(pools))

			return nil
		},
	}
}

// parseCollectionFile builds pools whose counters match their licenses at now, with nothing lent.
func parseCollectionFile(raw []byte, now time.Time) ([]importedPool, error) {
	var file collectionFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrInvalidCollectionFile, err)
	}

	if err := validate.Struct(file); err != nil {
		return nil, errors.Join(ErrInvalidCollectionFile, err)
	}

	pools := make([]importedPool, 0, len(file.Pools))
	for _, entry := range file.Pools {
		if (entry.OpenAccess || entry.UnlimitedAccess) && len(entry.Licenses) > 0 {
			return nil, errors.Join(ErrInvalidCollectionFile, fmt.Errorf("pool %s bypasses licensing but lists licenses", entry.Identifier))
		}

		pools = append(pools, buildPool(file.CollectionID, entry, now))
	}

	return pools, nil
}

func buildPool(collectionID uuid.UUID, entry poolFile, now time.Time) importedPool {
	pool := circulation.LicensePool{
		ID:              entry.ID,
		CollectionID:    collectionID,
		Identifier:      entry.Identifier,
		OpenAccess:      entry.OpenAccess,
		UnlimitedAccess: entry.UnlimitedAccess,
		LastChangedAt:   now,
	}

	if pool.ID == uuid.Nil {
		pool.ID = uuid.New()
	}

	licenses := make([]circulation.License, 0, len(entry.Licenses))
	for _, l := range entry.Licenses {
		license := circulation.License{
			ID:                 l.ID,
			PoolID:             pool.ID,
			Identifier:         l.Identifier,
			CheckoutURL:        l.CheckoutURL,
			StatusURL:          l.StatusURL,
			TermsConcurrency:   l.TermsConcurrency,
			CheckoutsLeft:      l.CheckoutsLeft,
			CheckoutsAvailable: l.TermsConcurrency,
			Expires:            l.Expires,
		}

		if license.ID == uuid.Nil {
			license.ID = uuid.New()
		}

		if l.CheckoutsAvailable != nil {
			license.CheckoutsAvailable = *l.CheckoutsAvailable
		}

		if license.IsUsable(now) {
			pool.LicensesOwned += license.TermsConcurrency
			pool.LicensesAvailable += license.FreeSlots(now)
		}

		licenses = append(licenses, license)
	}

	return importedPool{pool: pool, licenses: licenses}
}

func importPools(ctx context.Context, ledger PoolSaver, pools []importedPool) error {
	for _, imported := range pools {
		if err := ledger.SaveLicensePool(ctx, imported.pool, imported.licenses); err != nil {
			return fmt.Errorf("importing pool %s: %w", imported.pool.Identifier, err)
		}
	}

	return nil
}
