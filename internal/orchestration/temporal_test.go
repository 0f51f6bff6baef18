package orchestration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/axiom/sqlagent/internal/models"
)

func TestGenerateSQLWorkflow(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()

	a := &Activities{}
	env.RegisterActivity(a)
	want := models.WorkflowOutput{Result: &models.Result{SQL: "SELECT 1", Case: models.CaseAGold}}
	env.OnActivity(a.GenerateSQLActivity, mock.Anything, mock.Anything).Return(want, nil)

	env.ExecuteWorkflow(GenerateSQLWorkflow, models.WorkflowInput{RunID: "r1", WorkspaceID: "shop", Question: "q"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var got models.WorkflowOutput
	require.NoError(t, env.GetWorkflowResult(&got))
	assert.Equal(t, "SELECT 1", got.Result.SQL)
	env.AssertExpectations(t)
}
