package models

// WorkflowInput is the Temporal workflow payload for a run
type WorkflowInput struct {
	RunID         string `json:"run_id"`
	WorkspaceID   string `json:"workspace_id"`
	WorkspacePath string `json:"workspace_path"`
	Question      string `json:"question"`
}

// WorkflowOutput is either a result or a structured failure
type WorkflowOutput struct {
	Result  *Result  `json:"result,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}
