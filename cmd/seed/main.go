package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/oggyb/wa-notifier/internal/clock"
	"github.com/oggyb/wa-notifier/internal/config"
	"github.com/oggyb/wa-notifier/internal/db"
	"github.com/oggyb/wa-notifier/internal/db/gormdb"
	"github.com/oggyb/wa-notifier/internal/domain/contact"
	"github.com/oggyb/wa-notifier/internal/logging"
	gormrepo "github.com/oggyb/wa-notifier/internal/repository/gorm"
	auditRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/audit"
	ruleRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/autoreply"
	contactRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/contact"
	deviceRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/device"
	mesgRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/message"
	templateRepo "github.com/oggyb/wa-notifier/internal/repository/gorm/template"
	"github.com/oggyb/wa-notifier/internal/service"
)

const (
	contactCount = 10
	seedCount    = 30
)

var guardianNames = []string{"Ibu Sari", "Pak Budi", "Ibu Rina", "Pak Agus", "Ibu Dewi"}

func main() {
	ctx := context.Background()

	// Load application configuration (DB, Redis, etc.) from env/.env.
	cfg, err := config.New()
	if err != nil {
		logging.Fatal().Err(err).Msg("[Seed] Invalid configuration")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	loc, err := cfg.Location()
	if err != nil {
		logging.Fatal().Err(err).Msg("[Seed] Invalid timezone")
	}

	conn, err := gormdb.New(cfg.PostgresDSN(), db.PoolConfig{MaxOpenConns: 4})
	if err != nil {
		logging.Fatal().Err(err).Msg("[Seed] Failed to connect to database")
	}
	defer func() { _ = conn.Close() }()
	logging.Info().Str("db", cfg.DB.Name).Msg("[Seed] Connected to database")

	// 1) AutoMigrate every table.
	if err := gormrepo.AutoMigrate(conn); err != nil {
		logging.Fatal().Err(err).Msg("[Seed] AutoMigrate failed")
	}
	logging.Info().Msg("[Seed] Schema is up to date")

	devices := deviceRepo.NewRepository(conn)
	contacts := contactRepo.NewRepository(conn)
	messages := mesgRepo.NewRepository(conn)
	audits := auditRepo.NewRepository(conn)
	clk := clock.Real{}

	// 2) Devices, auto-reply rules and templates from the fixtures file.
	fx, err := config.LoadFixtures(cfg.Fixtures.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("[Seed] Failed to load fixtures")
	}
	if err := fx.Apply(ctx, devices, ruleRepo.NewRepository(conn), templateRepo.NewRepository(conn), loc, clk.Now()); err != nil {
		logging.Fatal().Err(err).Msg("[Seed] Failed to apply fixtures")
	}
	logging.Info().
		Int("devices", len(fx.Devices)).
		Int("templates", len(fx.Templates)).
		Str("path", cfg.Fixtures.Path).
		Msg("[Seed] Fixtures applied")

	// 3) Sample guardians.
	phones := make([]string, 0, contactCount)
	for i := range contactCount {
		phone, err := contact.NormalizePhone(randomPhone(), cfg.Defaults.CountryCode)
		if err != nil {
			logging.Fatal().Err(err).Msg("[Seed] Generated an invalid phone")
		}
		c := &contact.Contact{
			Phone: phone,
			Name:  guardianNames[i%len(guardianNames)],
			Tags:  []string{"guardian", "seed"},
		}
		if err := contacts.Upsert(ctx, c); err != nil {
			logging.Fatal().Err(err).Str("phone", phone).Msg("[Seed] Failed to save contact")
		}
		phones = append(phones, phone)
	}
	logging.Info().Int("count", len(phones)).Msg("[Seed] Contacts created")

	// 4) Pending messages, routed through the service so device selection applies.
	registry := service.NewRegistry(devices, audits, clk, cfg.Quota.DeviceErrorThreshold)
	msgSvc := service.NewMessageService(messages, registry, audits, clk, cfg.Defaults.CountryCode)

	for i := range seedCount {
		m, err := msgSvc.Send(ctx, service.SendInput{
			To:      phones[rand.IntN(len(phones))],
			Content: randomContent(i + 1),
		})
		if err != nil {
			logging.Fatal().Err(err).Int("n", i+1).Msg("[Seed] Failed to enqueue message")
		}
		logging.Debug().
			Str("id", m.ID.String()).
			Str("to", m.Recipient).
			Str("device_id", m.DeviceID.String()).
			Msg("[Seed] Created message")
	}

	logging.Info().Int("count", seedCount).Msg("[Seed] Done")
}

// randomPhone generates a local Indonesian mobile number, e.g. 081234567890.
func randomPhone() string {
	return fmt.Sprintf("08%d", rand.IntN(9000000000)+1000000000)
}

// randomContent generates a simple notification body for seeding.
func randomContent(i int) string {
	return fmt.Sprintf("Seed notification #%d: please confirm your child's pickup time.", i)
}
