// Command intake-demo runs an interactive console consultation against a
// local generation backend, including the hand-off to the pregnancy track.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/BTreeMap/IntakeBridge/internal/api"
	"github.com/BTreeMap/IntakeBridge/internal/genai"
	"github.com/BTreeMap/IntakeBridge/internal/models"
	"github.com/BTreeMap/IntakeBridge/internal/session"
	"github.com/BTreeMap/IntakeBridge/internal/store"
	"github.com/BTreeMap/IntakeBridge/internal/util"
	"github.com/joho/godotenv"
)

// questionKeys is the standard history-taking order for the intake track.
var questionKeys = []string{
	"age",
	"chief_complaint",
	"lmp",
	"cycle_regular",
	"pregnancy_history",
	"contraception",
	"current_symptoms",
	"medical_history",
	"medications",
	"surgery_history",
	"drug_allergy",
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	sessionDir := flag.String("session-dir", "data/sessions", "directory for session documents")
	baseURL := flag.String("backend", util.EnvOrDefault("BACKEND_BASE_URL", "http://localhost:11434/v1"), "chat backend base URL")
	intakeModel := flag.String("intake-model", util.EnvOrDefault("INTAKE_MODEL", "gyn-assistant:latest"), "intake model")
	pregnancyModel := flag.String("pregnancy-model", util.EnvOrDefault("PREGNANCY_MODEL", "pregnancy-assistant:latest"), "pregnancy model")
	flag.Parse()

	st, err := store.NewFileStore(store.WithDir(*sessionDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to open session store:", err)
		os.Exit(1)
	}

	intakeBackend, err := genai.NewClient(
		genai.WithBaseURL(*baseURL),
		genai.WithModel(*intakeModel),
		genai.WithTimeout(30*time.Second),
		genai.WithSampling(0.4, 0.9),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create backend client:", err)
		os.Exit(1)
	}
	pregnancyBackend, err := genai.NewClient(
		genai.WithBaseURL(*baseURL),
		genai.WithModel(*pregnancyModel),
		genai.WithTimeout(45*time.Second),
		genai.WithSampling(0.6, 0.85),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create backend client:", err)
		os.Exit(1)
	}

	cfg := session.DefaultConfig()
	cfg.IntakeModel = *intakeModel
	cfg.PregnancyModel = *pregnancyModel
	svc := api.NewService(st, intakeBackend, pregnancyBackend, cfg, nil)

	ctx := context.Background()
	sessionID := util.NewPatientSessionID()
	fmt.Printf("Starting new session: %s\n", sessionID)
	fmt.Println("============================================================")

	created, err := svc.CreateIntake(ctx, sessionID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create session:", err)
		os.Exit(1)
	}
	if created.CurrentQuestion != "" {
		fmt.Printf("\nپزشک: %s\n\n", created.CurrentQuestion)
	}

	scanner := bufio.NewScanner(os.Stdin)
	suspected := runIntakeLoop(ctx, svc, sessionID, scanner)

	if suspected {
		fmt.Println("\n⚠️ احتمال بارداری وجود دارد. ارجاع به ماژول بارداری.")
		runPregnancyLoop(ctx, svc, sessionID, scanner)
	}

	fmt.Println("\n============================================================")
	fmt.Printf("Session saved under: %s\n", *sessionDir)
}

// runIntakeLoop drives the intake interview until exit, suspension or
// suspicion. It reports whether pregnancy suspicion was raised.
func runIntakeLoop(ctx context.Context, svc *api.Service, sessionID string, scanner *bufio.Scanner) bool {
	turn := 0
	for {
		fmt.Print("بیمار: ")
		if !scanner.Scan() {
			return false
		}
		answer := scanner.Text()
		if answer == "" {
			continue
		}
		if answer == "خروج" || answer == "پایان" {
			if err := svc.CompleteIntake(ctx, sessionID); err != nil {
				fmt.Fprintln(os.Stderr, "failed to complete session:", err)
			}
			return false
		}

		key := "extra_" + fmt.Sprint(turn+1)
		if turn < len(questionKeys) {
			key = questionKeys[turn]
		}
		result, err := svc.SubmitIntakeAnswer(ctx, sessionID, key, answer)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return false
		}
		turn++

		if result.PregnancySuspicion {
			return true
		}
		if result.Reply == "" {
			fmt.Println("❌ خطا در دریافت پاسخ از مدل")
			return false
		}
		fmt.Printf("\nپزشک: %s\n\n", result.Reply)
	}
}

// runPregnancyLoop transfers the session and drives the specialized track
// until the status resolves or the patient exits.
func runPregnancyLoop(ctx context.Context, svc *api.Service, intakeID string, scanner *bufio.Scanner) {
	transfer, err := svc.TransferToPregnancy(ctx, intakeID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "transfer failed:", err)
		return
	}
	fmt.Printf("\n🤰 شروع مشاوره تخصصی بارداری (%s)\n", transfer.PregnancySessionID)
	if transfer.FirstQuestion != "" {
		fmt.Printf("\nپزشک: %s\n\n", transfer.FirstQuestion)
	}

	for {
		fmt.Print("بیمار: ")
		if !scanner.Scan() {
			return
		}
		answer := scanner.Text()
		if answer == "" {
			continue
		}
		if answer == "خروج" || answer == "پایان" {
			return
		}

		result, err := svc.SubmitPregnancyAnswer(ctx, transfer.PregnancySessionID, answer)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		if result.Reply == "" {
			fmt.Println("❌ خطا در دریافت سوال بعدی")
			return
		}
		fmt.Printf("\nپزشک: %s\n\n", result.Reply)

		if result.Status == models.PregnancyStatusConfirmed || result.Status == models.PregnancyStatusRuledOut {
			fmt.Printf("وضعیت نهایی: %s\n", result.Status)
			return
		}
	}
}
