package recordstore_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recordkit/fluent-recordstore-go/recordstore"
)

func Test_RuleSet_Merge_OtherSetWinsOnConflicts(t *testing.T) {
	base := recordstore.RuleSet{
		"email": "required,email",
		"age":   "omitempty,gte=18",
	}
	override := recordstore.RuleSet{
		"email":    "required",
		"password": "required,min=8",
	}

	merged := base.Merge(override)

	assert.Equal(t, recordstore.RuleSet{
		"email":    "required",
		"age":      "omitempty,gte=18",
		"password": "required,min=8",
	}, merged)
}

func Test_RuleSet_Merge_DoesNotModifyReceiver(t *testing.T) {
	base := recordstore.RuleSet{"email": "required"}

	_ = base.Merge(recordstore.RuleSet{"email": "required,email"})

	assert.Equal(t, recordstore.RuleSet{"email": "required"}, base)
}

func Test_FieldErrors_Fields_ReturnsSortedFieldNames(t *testing.T) {
	fieldErrs := recordstore.FieldErrors{
		"username": {"is required"},
		"age":      {"must be at least 18"},
		"email":    {"is required", "must be a valid email address"},
	}

	assert.Equal(t, []string{"age", "email", "username"}, fieldErrs.Fields())
}

func Test_ValidationError_Error_ListsFailedFields(t *testing.T) {
	validationErr := &recordstore.ValidationError{
		FieldErrors: recordstore.FieldErrors{
			"email": {"is required"},
			"age":   {"must be at least 18"},
		},
	}

	assert.Equal(t, "record validation failed for field(s): age, email", validationErr.Error())
}
