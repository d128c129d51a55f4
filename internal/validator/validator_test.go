package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Test structs
type TestAgentRequest struct {
	AgentID string `json:"agent_id" validate:"required,agentid"`
	Email   string `json:"email" validate:"required,email"`
	Age     int    `json:"age" validate:"gte=0,lte=150"`
}

type TestOperationRequest struct {
	OpID    string `json:"op_id" validate:"required,uuid"`
	Name    string `json:"name" validate:"required,min=3,max=100"`
	Kind    string `json:"kind" validate:"required,opkind"`
	Timeout int    `json:"timeout" validate:"gte=60,lte=86400"`
}

func TestValidateStruct_Success(t *testing.T) {
	req := TestOperationRequest{
		OpID:    "123e4567-e89b-12d3-a456-426614174000",
		Name:    "fetch weather",
		Kind:    "ApiCall",
		Timeout: 3600,
	}

	err := ValidateStruct(req)
	assert.NoError(t, err)
}

func TestValidateStruct_RequiredFields(t *testing.T) {
	req := TestOperationRequest{
		// Missing required fields
	}

	err := ValidateStruct(req)
	assert.Error(t, err)
}

func TestValidateRequest_Success(t *testing.T) {
	req := TestAgentRequest{
		AgentID: "agent-one",
		Email:   "agent@example.com",
		Age:     25,
	}

	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateRequest_MultipleErrors(t *testing.T) {
	req := TestAgentRequest{
		AgentID: "a", // too short
		Email:   "not-an-email",
		Age:     200, // too old
	}

	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "agentid")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "age")
}

func TestValidateAgentID_Valid(t *testing.T) {
	validIDs := []string{"agent", "agent-123", "my-agent_01", "Agent-Name_123"}

	for _, id := range validIDs {
		req := TestAgentRequest{AgentID: id, Email: "a@example.com", Age: 25}
		errs := ValidateRequest(req)
		assert.Nil(t, errs, "agent id should be valid: %s", id)
	}
}

func TestValidateAgentID_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		agentID string
	}{
		{"too short", "ab"},
		{"too long", string(make([]byte, 65))},
		{"invalid chars", "agent@one"},
		{"spaces", "agent one"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestAgentRequest{AgentID: tt.agentID, Email: "a@example.com", Age: 25}
			errs := ValidateRequest(req)
			assert.NotNil(t, errs)
			assert.Contains(t, errs, "agentid")
		})
	}
}

func TestValidateOperationKind_Valid(t *testing.T) {
	validKinds := []string{"ApiCall", "FilterData", "EncodeDecode", "Calculate"}

	for _, kind := range validKinds {
		req := TestOperationRequest{
			OpID:    "123e4567-e89b-12d3-a456-426614174000",
			Name:    "test",
			Kind:    kind,
			Timeout: 60,
		}
		errs := ValidateRequest(req)
		assert.Nil(t, errs, "kind should be valid: %s", kind)
	}
}

func TestValidateOperationKind_Invalid(t *testing.T) {
	req := TestOperationRequest{
		OpID:    "123e4567-e89b-12d3-a456-426614174000",
		Name:    "test",
		Kind:    "DeleteEverything",
		Timeout: 60,
	}
	errs := ValidateRequest(req)
	assert.NotNil(t, errs)
	assert.Contains(t, errs, "kind")
}

func TestValidateEmail_Invalid(t *testing.T) {
	invalidEmails := []string{"not-an-email", "@example.com", "user@", "user @example.com", ""}

	for _, email := range invalidEmails {
		req := TestAgentRequest{AgentID: "agent-one", Email: email, Age: 25}
		errs := ValidateRequest(req)
		assert.NotNil(t, errs, "email should be invalid: %s", email)
		assert.Contains(t, errs, "email")
	}
}

func TestValidateUUID_Valid(t *testing.T) {
	req := TestOperationRequest{
		OpID:    "123e4567-e89b-12d3-a456-426614174000",
		Name:    "Test",
		Kind:    "ApiCall",
		Timeout: 60,
	}

	errs := ValidateRequest(req)
	assert.Nil(t, errs)
}

func TestValidateUUID_Invalid(t *testing.T) {
	invalidUUIDs := []string{"not-a-uuid", "123456", "123e4567-e89b-12d3-a456", ""}

	for _, uuid := range invalidUUIDs {
		req := TestOperationRequest{OpID: uuid, Name: "Test", Kind: "ApiCall", Timeout: 60}
		errs := ValidateRequest(req)
		assert.NotNil(t, errs, "UUID should be invalid: %s", uuid)
		assert.Contains(t, errs, "opid")
	}
}

func TestValidateMinMax_Strings(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		shouldErr bool
	}{
		{"valid", "fetch weather", false},
		{"too short", "ab", true},
		{"too long", string(make([]byte, 101)), true},
		{"min length", "abc", false},
		{"max length", string(make([]byte, 100)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestOperationRequest{
				OpID:    "123e4567-e89b-12d3-a456-426614174000",
				Name:    tt.value,
				Kind:    "ApiCall",
				Timeout: 60,
			}

			errs := ValidateRequest(req)
			if tt.shouldErr {
				assert.NotNil(t, errs)
				assert.Contains(t, errs, "name")
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestValidateRange_Numbers(t *testing.T) {
	tests := []struct {
		name      string
		timeout   int
		shouldErr bool
	}{
		{"valid", 3600, false},
		{"too small", 30, true},
		{"too large", 100000, true},
		{"min value", 60, false},
		{"max value", 86400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := TestOperationRequest{
				OpID:    "123e4567-e89b-12d3-a456-426614174000",
				Name:    "Test",
				Kind:    "ApiCall",
				Timeout: tt.timeout,
			}

			errs := ValidateRequest(req)
			if tt.shouldErr {
				assert.NotNil(t, errs)
				assert.Contains(t, errs, "timeout")
			} else {
				assert.Nil(t, errs)
			}
		})
	}
}

func TestFormatValidationError(t *testing.T) {
	req := TestAgentRequest{
		AgentID: "",
		Email:   "invalid",
		Age:     -1,
	}

	errs := ValidateRequest(req)
	assert.NotNil(t, errs)

	for field, msg := range errs {
		assert.NotEmpty(t, msg, "error message should not be empty for field: %s", field)
		assert.NotContains(t, msg, "Validation failed", "should use custom error message")
	}
}
