// cmd/tools/loan-simulator/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"loan-workflow/internal/common/logger"
	"loan-workflow/internal/models"
	"loan-workflow/internal/pipeline"
	"loan-workflow/internal/service"
	"loan-workflow/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func main() {
	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	documentsCmd := flag.NewFlagSet("documents", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	// Run command flags
	runFile := runCmd.String("file", "", "Application JSON file (default: built-in sample applicant)")
	runJSON := runCmd.Bool("json", false, "Print the final application and workflow state as JSON")
	runVerbose := runCmd.Bool("verbose", false, "Log stage execution to stderr")

	// Documents command flags
	loanType := documentsCmd.String("type", "personal", "Loan type (personal, auto, home, business, student)")
	amount := documentsCmd.String("amount", "10000", "Requested amount")

	// Validate command flags
	validateFile := validateCmd.String("file", "", "Application JSON file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runCmd.Parse(os.Args[2:])
		if err := run(*runFile, *runJSON, *runVerbose); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

	case "documents":
		documentsCmd.Parse(os.Args[2:])
		if err := documents(models.LoanType(*loanType), *amount); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if *validateFile == "" {
			fmt.Println("Error: file is required for validate.")
			validateCmd.Usage()
			os.Exit(1)
		}
		ok, err := validate(*validateFile)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			os.Exit(2)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func run(file string, asJSON, verbose bool) error {
	now := time.Now().UTC()
	app := models.SampleApplication(now)
	if file != "" {
		var err error
		if app, err = loadApplication(file, now); err != nil {
			return err
		}
	}

	log := logger.NewNoOpLogger()
	if verbose {
		log = logger.NewStructured("debug", "console")
	}

	p, err := pipeline.New(pipeline.DefaultConfig(), pipeline.Collaborators{}, log, nil)
	if err != nil {
		return err
	}

	state, runErr := p.Run(context.Background(), app)
	if state == nil {
		return runErr
	}

	if asJSON {
		out, err := json.MarshalIndent(struct {
			Application *models.LoanApplication `json:"application"`
			Workflow    workflow.Progress       `json:"workflow"`
		}{state.Application, state.Progress}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return runErr
	}

	printRun(state)
	return runErr
}

func printRun(state *workflow.State) {
	app := state.Application
	fmt.Printf("Application %s (%s)\n\n", app.ApplicationNumber, app.ApplicantName())
	for _, m := range state.Transcript {
		fmt.Printf("  [%-20s] %s\n", m.Stage, m.Content)
	}

	fmt.Println()
	fmt.Printf("Status:          %s\n", app.Status)
	fmt.Printf("Workflow status: %s\n", state.Status)
	fmt.Printf("Next action:     %s\n", state.NextAction)
	if state.HumanReviewRequired {
		fmt.Println("Human review:    required")
	}
	if app.AssignedUnderwriter != nil {
		fmt.Printf("Underwriter:     %s\n", *app.AssignedUnderwriter)
	}
	if state.ErrorMessage != "" {
		fmt.Printf("Error:           %s\n", state.ErrorMessage)
	}

	d := app.Decision
	if d == nil {
		return
	}
	fmt.Printf("Decision:        %s (confidence %.2f)\n", d.Decision, d.ConfidenceScore)
	if d.ApprovedAmount != nil {
		fmt.Printf("Approved amount: %s\n", models.FormatMoney(*d.ApprovedAmount))
	}
	if d.InterestRate != nil && d.ApprovedTermMonths != nil {
		fmt.Printf("Terms:           %.2f%% APR for %d months\n", *d.InterestRate, *d.ApprovedTermMonths)
	}
	for _, c := range d.Conditions {
		fmt.Printf("  condition: %s\n", c)
	}
	for _, r := range d.RejectionReasons {
		fmt.Printf("  reason:    %s\n", r)
	}
}

// loadApplication reads an application document and fills what intake would
// assign, so it can run without being stored.
func loadApplication(file string, now time.Time) (*models.LoanApplication, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	var app models.LoanApplication
	if err := json.Unmarshal(data, &app); err != nil {
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}

	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.ApplicationNumber == "" {
		app.ApplicationNumber = models.NewApplicationNumber(now)
	}
	if app.Status == "" {
		app.Status = models.LoanStatusSubmitted
	}
	if app.PriorityLevel == 0 {
		app.PriorityLevel = 1
	}
	if app.Notes == nil {
		app.Notes = []string{}
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
		app.UpdatedAt = now
	}
	for i := range app.Documents {
		if app.Documents[i].ID == "" {
			app.Documents[i].ID = uuid.NewString()
		}
		if app.Documents[i].UploadedAt.IsZero() {
			app.Documents[i].UploadedAt = now
		}
	}
	return &app, nil
}

func documents(loanType models.LoanType, amount string) error {
	requested, err := decimal.NewFromString(amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	switch loanType {
	case models.LoanTypePersonal, models.LoanTypeAuto, models.LoanTypeHome, models.LoanTypeBusiness, models.LoanTypeStudent:
	default:
		return fmt.Errorf("unknown loan type %q", loanType)
	}

	app := &models.LoanApplication{
		LoanDetails: &models.LoanDetails{LoanType: loanType, RequestedAmount: requested},
	}
	fmt.Printf("Required documents for a %s loan of %s:\n", loanType, models.FormatMoney(requested))
	for _, doc := range app.RequiredDocuments() {
		fmt.Printf("  - %s (%s)\n", doc.DisplayName(), doc)
	}
	return nil
}

func validate(file string) (bool, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", file, err)
	}

	problems, err := service.CheckPayload(data)
	if err != nil {
		return false, err
	}
	if len(problems) == 0 {
		fmt.Println("Application is valid.")
		return true, nil
	}

	fmt.Printf("Application has %d problem(s):\n", len(problems))
	for _, p := range problems {
		fmt.Printf("  - %s\n", p)
	}
	return false, nil
}

func help() {
	fmt.Println("Usage: loan-simulator <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  run        Run the underwriting workflow offline and print the transcript")
	fmt.Println("  documents  List the documents required for a loan type and amount")
	fmt.Println("  validate   Check an application document against the intake schema and rules")
	fmt.Println("  help       Show this help message")
}
