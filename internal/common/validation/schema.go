package validation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// GetErrorMessages renders every error as "field: message".
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		messages = append(messages, e.Field+": "+e.Message)
	}
	return messages
}

func (vr *ValidationResult) HasErrors(field string) bool {
	return len(vr.GetErrorsForField(field)) > 0
}

func (vr *ValidationResult) GetErrorsForField(field string) []ValidationError {
	var out []ValidationError
	for _, e := range vr.Errors {
		if e.Field == field {
			out = append(out, e)
		}
	}
	return out
}

var (
	applicationSchemaOnce sync.Once
	applicationSchema     *gojsonschema.Schema
	applicationSchemaErr  error
)

// ValidateApplicationPayload checks the shape of a loan application intake
// document. Business invariants are checked later on the decoded aggregate.
func ValidateApplicationPayload(payload []byte) (*ValidationResult, error) {
	applicationSchemaOnce.Do(func() {
		applicationSchema, applicationSchemaErr = gojsonschema.NewSchema(
			gojsonschema.NewStringLoader(applicationSchemaJSON))
	})
	if applicationSchemaErr != nil {
		return nil, fmt.Errorf("compile application schema: %w", applicationSchemaErr)
	}

	result, err := applicationSchema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   fieldName(desc),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out, nil
}

// fieldName reports missing required properties against the property itself.
func fieldName(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if desc.Type() == "required" {
		if prop, ok := desc.Details()["property"].(string); ok {
			if field == gojsonschema.STRING_CONTEXT_ROOT || field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	return field
}

const applicationSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["personalInfo", "employmentInfo", "financialInfo", "loanDetails"],
  "definitions": {
    "money": {"type": ["number", "string"], "pattern": "^-?[0-9]+(\\.[0-9]+)?$"},
    "address": {
      "type": "object",
      "required": ["street", "city", "state", "zipCode"],
      "properties": {
        "street": {"type": "string"},
        "city": {"type": "string"},
        "state": {"type": "string"},
        "zipCode": {"type": "string"},
        "country": {"type": "string"}
      }
    }
  },
  "properties": {
    "priorityLevel": {"type": "integer", "minimum": 1, "maximum": 5},
    "personalInfo": {
      "type": "object",
      "required": ["firstName", "lastName", "dateOfBirth", "ssn", "phone", "email", "maritalStatus", "address"],
      "properties": {
        "firstName": {"type": "string", "minLength": 1, "maxLength": 100},
        "lastName": {"type": "string", "minLength": 1, "maxLength": 100},
        "middleName": {"type": "string", "maxLength": 100},
        "dateOfBirth": {"type": "string", "format": "date-time"},
        "ssn": {"type": "string"},
        "phone": {"type": "string"},
        "email": {"type": "string"},
        "maritalStatus": {"enum": ["single", "married", "divorced", "widowed"]},
        "dependents": {"type": "integer", "minimum": 0},
        "address": {"$ref": "#/definitions/address"}
      }
    },
    "employmentInfo": {
      "type": "object",
      "required": ["status", "annualIncome", "monthlyIncome"],
      "properties": {
        "status": {"enum": ["employed", "self_employed", "unemployed", "retired", "student"]},
        "employerName": {"type": "string"},
        "jobTitle": {"type": "string"},
        "employmentStartDate": {"type": "string", "format": "date-time"},
        "annualIncome": {"$ref": "#/definitions/money"},
        "monthlyIncome": {"$ref": "#/definitions/money"},
        "otherIncome": {"$ref": "#/definitions/money"},
        "employerAddress": {"$ref": "#/definitions/address"}
      }
    },
    "financialInfo": {
      "type": "object",
      "required": ["monthlyRentMortgage", "monthlyDebtPayments", "monthlyExpenses"],
      "properties": {
        "monthlyRentMortgage": {"$ref": "#/definitions/money"},
        "monthlyDebtPayments": {"$ref": "#/definitions/money"},
        "monthlyExpenses": {"$ref": "#/definitions/money"},
        "savingsBalance": {"$ref": "#/definitions/money"},
        "checkingBalance": {"$ref": "#/definitions/money"},
        "creditCardsDebt": {"$ref": "#/definitions/money"},
        "assetsValue": {"$ref": "#/definitions/money"}
      }
    },
    "loanDetails": {
      "type": "object",
      "required": ["loanType", "requestedAmount", "requestedTermMonths", "purpose"],
      "properties": {
        "loanType": {"enum": ["personal", "auto", "home", "business", "student"]},
        "requestedAmount": {"$ref": "#/definitions/money"},
        "requestedTermMonths": {"type": "integer"},
        "purpose": {"type": "string"},
        "collateralDescription": {"type": "string"},
        "collateralValue": {"$ref": "#/definitions/money"}
      }
    },
    "documents": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["documentType", "fileName", "mimeType"],
        "properties": {
          "documentType": {"type": "string"},
          "fileName": {"type": "string", "minLength": 1},
          "filePath": {"type": "string"},
          "fileSize": {"type": "integer", "minimum": 0},
          "mimeType": {"type": "string"}
        }
      }
    }
  }
}`
