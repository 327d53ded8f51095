package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/appointment-sync/internal/appointment"
	"github.com/hackgods/appointment-sync/internal/db"
	"github.com/hackgods/appointment-sync/internal/logging"
)

func main() {
	log := logging.New(os.Getenv("APP_ENV"), "seed")
	log.Info().Msg("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal().Msg("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	// 0 picks a random seed
	gofakeit.Seed(0)

	users, err := seedUsers(context.Background(), pool, 12, log)
	if err != nil {
		log.Fatal().Err(err).Msg("seed users")
	}
	if err := seedAppointments(context.Background(), pool, users, 20, log); err != nil {
		log.Fatal().Err(err).Msg("seed appointments")
	}

	log.Info().Msg("seed complete")
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool, count int, log zerolog.Logger) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding users")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, display_name, email, created_at)
			VALUES ($1, $2, $3, now())
		`, id, gofakeit.Name(), gofakeit.Email())
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("users seeded")
	return ids, nil
}

// seedAppointments books a few non-overlapping consultations on each of the
// next days weekdays, plus the odd procedure, so the slot finder has gaps.
func seedAppointments(ctx context.Context, pool *pgxpool.Pool, users []uuid.UUID, days int, log zerolog.Logger) error {
	log.Info().Int("days", days).Msg("seeding appointments")

	subtypes := []string{"initial", "follow-up", "review", "second-opinion"}
	codes := appointment.StatusCodes()
	checker := appointment.DefaultChecker()

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	total := 0
	today := time.Now().UTC()
	for d := 0; d < days; d++ {
		date := appointment.FormatDate(today.AddDate(0, 0, d))
		if ok, _ := checker.Bookable(date); !ok {
			continue
		}

		var booked []appointment.Appointment
		for i := 0; i < gofakeit.Number(2, 8); i++ {
			start := appointment.FormatClock(checker.DayStart + appointment.SlotStep*gofakeit.Number(0, 30))
			if !checker.InWindow(start) {
				continue
			}
			if free, _ := checker.IsFree(date, start, booked); !free {
				continue
			}
			end, _ := appointment.EndFor(start)
			a := appointment.Appointment{
				Date:        date,
				StartTime:   start,
				EndTime:     end,
				Type:        appointment.TypeConsultation,
				Subtype:     subtypes[gofakeit.Number(0, len(subtypes)-1)],
				StatusCode:  codes[gofakeit.Number(0, len(codes)-1)],
				PatientName: gofakeit.Name(),
			}
			if a.StatusCode == appointment.StatusCancelled {
				a.StatusCode = appointment.StatusFirm
			}
			booked = append(booked, a)

			_, err := tx.Exec(ctx, `
				INSERT INTO appointments (id, date, start_time, end_time, type, subtype, status_code,
					patient_name, assigned_user_id, notes, created_at, updated_at)
				VALUES ($1, $2::date, $3::time, $4::time, $5, $6, $7, $8, $9, $10, now(), now())
			`, uuid.New(), a.Date, a.StartTime, a.EndTime, a.Type, a.Subtype, string(a.StatusCode),
				a.PatientName, users[gofakeit.Number(0, len(users)-1)], "lead:"+uuid.NewString())
			if err != nil {
				return err
			}
			total++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info().Int("count", total).Msg("appointments seeded")
	return nil
}
