package rbac

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role       string
		permission string
		want       bool
	}{
		{RoleAdmin, PermissionCreateProject, true},
		{RoleConsultant, PermissionCreateProject, false},
		{RoleContractor, PermissionCreateProject, false},
		{RoleConsultant, PermissionReviewSubmission, true},
		{RoleAdmin, PermissionReviewSubmission, false},
		{RoleContractor, PermissionCreateSubmission, true},
		{RoleConsultant, PermissionCreateSubmission, false},
		{RoleContractor, PermissionComment, true},
		{"GUEST", PermissionReadProject, false},
	}

	for _, tt := range tests {
		t.Run(tt.role+"/"+tt.permission, func(t *testing.T) {
			assert.Equal(t, tt.want, HasPermission(tt.role, tt.permission))
		})
	}
}

func TestCheckPermission(t *testing.T) {
	assert.NoError(t, CheckPermission(1, RoleAdmin, PermissionRegisterActor))

	err := CheckPermission(2, RoleContractor, PermissionReviewSubmission)
	var denied *PermissionDeniedError
	assert.True(t, errors.As(err, &denied))
	assert.Equal(t, int64(2), denied.ActorID)
	assert.Equal(t, "role CONTRACTOR may not submission:review", err.Error())
}

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole("CONSULTANT"))
	assert.False(t, IsValidRole("consultant"))
}
