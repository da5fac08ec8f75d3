package clocklog

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/GNARcollectiveDAO/audius-protocol/internal/nodeerr"
)

// DefaultExportWindow caps the number of clock log rows a single Slice call
// returns, matching the configured export_window default.
const DefaultExportWindow = 10000

// Store is the Clock Log Store: atomic multi-table writes that always
// append the next clock value, plus the windowed read used to build export
// payloads.
type Store struct {
	db           *gorm.DB
	exportWindow int
}

// New creates a Store. exportWindow<=0 uses DefaultExportWindow.
func New(db *gorm.DB, exportWindow int) *Store {
	if exportWindow <= 0 {
		exportWindow = DefaultExportWindow
	}
	return &Store{db: db, exportWindow: exportWindow}
}

// Append executes every mutation and its matching clock-log row inside a
// single transaction, upserting the user record's clock to the highest
// clock value written. userUUID identifies a user that may not exist yet
// (first contact); wallet is required to create it.
func (s *Store) Append(userUUID, wallet string, nowUnix int64, mutations []Mutation) (int64, error) {
	if len(mutations) == 0 {
		return 0, nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: append requires at least one mutation", nil)
	}

	var newClock int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where("user_uuid = ?", userUUID).Take(&user).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			user = User{
				UserUUID:        userUUID,
				WalletPublicKey: wallet,
				Clock:           -1,
				CreatedAt:       nowUnix,
			}
			if err := tx.Create(&user).Error; err != nil {
				return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: failed to create user", err)
			}
		case err != nil:
			return fmt.Errorf("clocklog: load user: %w", err)
		}

		expectedStart := user.Clock + 1
		clock := expectedStart

		for _, m := range mutations {
			row := ClockLogRow{
				UserUUID:    userUUID,
				Clock:       clock,
				SourceTable: m.SourceTable,
				SourceRowID: m.SourceRowID,
				CreatedAt:   nowUnix,
			}
			if err := tx.Create(&row).Error; err != nil {
				return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: duplicate clock log row", err)
			}

			if err := applyMutation(tx, userUUID, clock, m); err != nil {
				return err
			}
			clock++
		}
		newClock = clock - 1

		// Guarded update: only succeeds if no concurrent writer has already
		// advanced the clock past expectedStart-1 since we read it above.
		res := tx.Model(&User{}).
			Where("user_uuid = ? AND clock = ?", userUUID, expectedStart-1).
			Updates(map[string]interface{}{"clock": newClock, "latest_block_number": user.LatestBlockNumber})
		if res.Error != nil {
			return fmt.Errorf("clocklog: update user clock: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nodeerr.New(nodeerr.KindClockGap, "clocklog: concurrent writer advanced clock", nil)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return newClock, nil
}

func applyMutation(tx *gorm.DB, userUUID string, clock int64, m Mutation) error {
	switch {
	case m.File != nil:
		f := *m.File
		f.UserUUID = userUUID
		f.Clock = clock
		if err := tx.Create(&f).Error; err != nil {
			return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: duplicate file row", err)
		}
	case m.Track != nil:
		t := *m.Track
		t.UserUUID = userUUID
		t.Clock = clock
		if err := tx.Save(&t).Error; err != nil {
			return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: failed to upsert track", err)
		}
	case m.AudiusUser != nil:
		au := *m.AudiusUser
		au.UserUUID = userUUID
		au.Clock = clock
		if err := tx.Save(&au).Error; err != nil {
			return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: failed to upsert audius user", err)
		}
	default:
		return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: mutation carries no entity", nil)
	}
	return nil
}

// Slice returns clock log rows and entities for wallet in
// [clockMin, min(user.clock, clockMin+exportWindow)], along with the
// caller's current clock. absent user ⇒ user.Clock == -1 and empty slices.
func (s *Store) Slice(wallet string, clockMin int64) (User, []ClockLogRow, Entities, error) {
	var user User
	err := s.db.Where("wallet_public_key = ?", wallet).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{WalletPublicKey: wallet, Clock: -1}, nil, Entities{}, nil
	}
	if err != nil {
		return User{}, nil, Entities{}, fmt.Errorf("clocklog: load user: %w", err)
	}

	if clockMin > user.Clock {
		return user, nil, Entities{}, nil
	}

	clockMax := clockMin + int64(s.exportWindow)
	if clockMax > user.Clock {
		clockMax = user.Clock
	}

	var rows []ClockLogRow
	if err := s.db.Where("user_uuid = ? AND clock BETWEEN ? AND ?", user.UserUUID, clockMin, clockMax).
		Order("clock ASC").Find(&rows).Error; err != nil {
		return User{}, nil, Entities{}, fmt.Errorf("clocklog: slice clock log: %w", err)
	}

	var entities Entities
	if err := s.db.Where("user_uuid = ? AND clock BETWEEN ? AND ?", user.UserUUID, clockMin, clockMax).
		Order("clock ASC").Find(&entities.Files).Error; err != nil {
		return User{}, nil, Entities{}, fmt.Errorf("clocklog: slice files: %w", err)
	}
	if err := s.db.Where("user_uuid = ? AND clock BETWEEN ? AND ?", user.UserUUID, clockMin, clockMax).
		Order("clock ASC").Find(&entities.Tracks).Error; err != nil {
		return User{}, nil, Entities{}, fmt.Errorf("clocklog: slice tracks: %w", err)
	}
	if err := s.db.Where("user_uuid = ? AND clock BETWEEN ? AND ?", user.UserUUID, clockMin, clockMax).
		Order("clock ASC").Find(&entities.AudiusUsers).Error; err != nil {
		return User{}, nil, Entities{}, fmt.Errorf("clocklog: slice audius users: %w", err)
	}

	return user, rows, entities, nil
}

// Wallets returns every wallet this store has a user record for, in no
// particular order. Used by Snapback to enumerate the users it is
// responsible for probing.
func (s *Store) Wallets() ([]string, error) {
	var users []User
	if err := s.db.Select("wallet_public_key").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("clocklog: list wallets: %w", err)
	}
	wallets := make([]string, len(users))
	for i, u := range users {
		wallets[i] = u.WalletPublicKey
	}
	return wallets, nil
}

// SkippedFiles returns up to limit File rows with Skipped=true, in no
// particular order. Used by the skipped-CID retry loop to pull a bounded
// batch per pass.
func (s *Store) SkippedFiles(limit int) ([]File, error) {
	var files []File
	q := s.db.Where("skipped = ?", true)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&files).Error; err != nil {
		return nil, fmt.Errorf("clocklog: list skipped files: %w", err)
	}
	return files, nil
}

// WalletForUser returns the wallet_public_key owning userUUID.
func (s *Store) WalletForUser(userUUID string) (string, error) {
	var user User
	if err := s.db.Where("user_uuid = ?", userUUID).Take(&user).Error; err != nil {
		return "", fmt.Errorf("clocklog: load user %s: %w", userUUID, err)
	}
	return user.WalletPublicKey, nil
}

// ClearSkipped flips fileUUID's Skipped flag to false and records its
// storage path, the effect of a successful retry-loop fetch. The caller
// must have already verified the written bytes hash to the file's
// multihash.
func (s *Store) ClearSkipped(fileUUID, storagePath string) error {
	res := s.db.Model(&File{}).Where("file_uuid = ?", fileUUID).
		Updates(map[string]interface{}{"skipped": false, "storage_path": storagePath})
	if res.Error != nil {
		return fmt.Errorf("clocklog: clear skipped for %s: %w", fileUUID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nodeerr.New(nodeerr.KindConstraintViolation, "clocklog: no file row "+fileUUID, nil)
	}
	return nil
}

// Truncate deletes every row for wallet (cascade: clock log, files, tracks,
// audius user). Used only by force_resync paths; the next write or import
// creates a fresh user_uuid.
func (s *Store) Truncate(wallet string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var user User
		err := tx.Where("wallet_public_key = ?", wallet).Take(&user).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("clocklog: load user for truncate: %w", err)
		}

		if err := tx.Where("user_uuid = ?", user.UserUUID).Delete(&ClockLogRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_uuid = ?", user.UserUUID).Delete(&File{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_uuid = ?", user.UserUUID).Delete(&Track{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_uuid = ?", user.UserUUID).Delete(&AudiusUser{}).Error; err != nil {
			return err
		}
		return tx.Delete(&user).Error
	})
}
