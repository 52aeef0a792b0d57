// internal/models/sample.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SampleApplication returns a complete, valid personal-loan application submitted
// at now. It is the reference applicant for the simulator and for tests.
func SampleApplication(now time.Time) *LoanApplication {
	start := now.AddDate(-3, 0, 0)
	dob := time.Date(1988, time.April, 12, 0, 0, 0, 0, time.UTC)

	return &LoanApplication{
		ID:                uuid.NewString(),
		ApplicationNumber: NewApplicationNumber(now),
		Status:            LoanStatusSubmitted,
		PersonalInfo: &PersonalInfo{
			FirstName:     "Jordan",
			LastName:      "Rivera",
			DateOfBirth:   dob,
			SSN:           "123-45-6789",
			Phone:         "5551234567",
			Email:         "jordan.rivera@example.com",
			MaritalStatus: MaritalSingle,
			Address: Address{
				Street:  "42 Market Street",
				City:    "Springfield",
				State:   "IL",
				ZipCode: "62701",
				Country: "US",
			},
		},
		EmploymentInfo: &EmploymentInfo{
			Status:              EmploymentEmployed,
			EmployerName:        "Acme Logistics",
			JobTitle:            "Operations Manager",
			EmploymentStartDate: &start,
			AnnualIncome:        decimal.NewFromInt(95000),
			MonthlyIncome:       decimal.RequireFromString("7916.67"),
		},
		FinancialInfo: &FinancialInfo{
			MonthlyRentMortgage: decimal.NewFromInt(1500),
			MonthlyDebtPayments: decimal.NewFromInt(300),
			MonthlyExpenses:     decimal.NewFromInt(1200),
			SavingsBalance:      decimal.NewFromInt(15000),
			CheckingBalance:     decimal.NewFromInt(4000),
			CreditCardsDebt:     decimal.NewFromInt(5000),
		},
		LoanDetails: &LoanDetails{
			LoanType:            LoanTypePersonal,
			RequestedAmount:     decimal.NewFromInt(25000),
			RequestedTermMonths: 36,
			Purpose:             "Debt consolidation and home office equipment",
		},
		Documents: []Document{
			{ID: uuid.NewString(), DocumentType: DocumentIdentity, FileName: "passport.pdf", FileSize: 182044, MimeType: "application/pdf", UploadedAt: now},
			{ID: uuid.NewString(), DocumentType: DocumentIncomeProof, FileName: "paystub.pdf", FileSize: 96211, MimeType: "application/pdf", UploadedAt: now},
		},
		Notes:         []string{},
		CreatedAt:     now,
		UpdatedAt:     now,
		SubmittedAt:   &now,
		PriorityLevel: 1,
	}
}
