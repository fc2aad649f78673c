package main

import (
	"github.com/flowdeckio/api/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	Workflow  *postgres.WorkflowRepository
	Execution *postgres.ExecutionRepository
	EnvVar    *postgres.EnvVarRepository
	Document  *postgres.DocumentRepository
	APIKey    *postgres.APIKeyRepository
}

// NewRepositories creates all repositories backed by the database.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		Workflow:  postgres.NewWorkflowRepository(db),
		Execution: postgres.NewExecutionRepository(db),
		EnvVar:    postgres.NewEnvVarRepository(db),
		Document:  postgres.NewDocumentRepository(db),
		APIKey:    postgres.NewAPIKeyRepository(db),
	}
}
