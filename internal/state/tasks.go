package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rkoval/flume/pkg/models"
)

// SaveTask upserts a full task snapshot, including every workflow step
// and any compacted contexts, in one transaction. It is safe to call on
// every lifecycle transition.
func (db *DB) SaveTask(t *models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		mode := ""
		complexity := ""
		if t.Workflow != nil {
			mode = string(t.Workflow.Mode)
			complexity = string(t.Workflow.Complexity)
		}

		_, err := tx.Exec(`
			INSERT INTO tasks (id, description, type, status, mode, complexity, result, error, failed_step_id,
				input_tokens, output_tokens, cache_tokens, cost, created_at, updated_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				status = excluded.status,
				result = excluded.result,
				error = excluded.error,
				failed_step_id = excluded.failed_step_id,
				input_tokens = excluded.input_tokens,
				output_tokens = excluded.output_tokens,
				cache_tokens = excluded.cache_tokens,
				cost = excluded.cost,
				updated_at = excluded.updated_at,
				completed_at = excluded.completed_at
		`, t.ID, t.Description, string(t.Type), string(t.Status), mode, complexity,
			t.Result, t.Error, t.FailedStepID,
			t.Usage.InputTokens, t.Usage.OutputTokens, t.Usage.CacheTokens, t.Usage.Cost,
			formatTime(t.CreatedAt), formatTime(t.UpdatedAt), formatNullableTime(t.CompletedAt))
		if err != nil {
			return fmt.Errorf("save task %s: %w", t.ID, err)
		}

		if t.Workflow == nil {
			return nil
		}
		for i, step := range t.Workflow.Steps {
			if err := saveStep(tx, t.ID, i, step); err != nil {
				return err
			}
		}
		return nil
	})
}

// saveStep upserts one step row and its context.
func saveStep(tx *sql.Tx, taskID string, position int, s *models.Step) error {
	constraints, err := json.Marshal(s.Constraints)
	if err != nil {
		return fmt.Errorf("marshal constraints for step %s: %w", s.ID, err)
	}
	dependsOn, err := json.Marshal(s.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on for step %s: %w", s.ID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO steps (id, task_id, position, role, instruction, constraints, depends_on,
			step_group, optional, status, raw_output, error,
			input_tokens, output_tokens, cache_tokens, cost, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			raw_output = excluded.raw_output,
			error = excluded.error,
			input_tokens = excluded.input_tokens,
			output_tokens = excluded.output_tokens,
			cache_tokens = excluded.cache_tokens,
			cost = excluded.cost,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`, s.ID, taskID, position, string(s.Role), s.Instruction, string(constraints), string(dependsOn),
		s.Group, boolToInt(s.Optional), string(s.Status), s.RawOutput, s.Error,
		s.Usage.InputTokens, s.Usage.OutputTokens, s.Usage.CacheTokens, s.Usage.Cost,
		formatNullableTime(s.StartedAt), formatNullableTime(s.CompletedAt))
	if err != nil {
		return fmt.Errorf("save step %s: %w", s.ID, err)
	}

	if s.Context == nil {
		return nil
	}
	files, err := json.Marshal(s.Context.Files)
	if err != nil {
		return fmt.Errorf("marshal files for step %s: %w", s.ID, err)
	}
	findings, err := json.Marshal(s.Context.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings for step %s: %w", s.ID, err)
	}
	_, err = tx.Exec(`
		INSERT INTO step_contexts (step_id, summary, files, findings, source_step_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(step_id) DO UPDATE SET
			summary = excluded.summary,
			files = excluded.files,
			findings = excluded.findings,
			source_step_id = excluded.source_step_id
	`, s.ID, s.Context.Summary, string(files), string(findings), s.Context.SourceStepID)
	if err != nil {
		return fmt.Errorf("save context for step %s: %w", s.ID, err)
	}
	return nil
}

// GetTask retrieves a task and its full workflow by ID.
// Returns nil without error when the task does not exist.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, description, type, status, mode, complexity, result, error, failed_step_id,
			input_tokens, output_tokens, cache_tokens, cost, created_at, updated_at, completed_at
		FROM tasks WHERE id = ?
	`, id)

	var t models.Task
	var mode, complexity, createdAt, updatedAt string
	var result, taskErr, failedStepID, completedAt sql.NullString
	err := row.Scan(&t.ID, &t.Description, &t.Type, &t.Status, &mode, &complexity,
		&result, &taskErr, &failedStepID,
		&t.Usage.InputTokens, &t.Usage.OutputTokens, &t.Usage.CacheTokens, &t.Usage.Cost,
		&createdAt, &updatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}

	t.Result = result.String
	t.Error = taskErr.String
	t.FailedStepID = failedStepID.String
	t.CreatedAt, _ = parseTime(createdAt)
	t.UpdatedAt, _ = parseTime(updatedAt)
	t.CompletedAt = parseNullableTime(completedAt)

	steps, err := db.loadSteps(id)
	if err != nil {
		return nil, err
	}
	t.Workflow = &models.Workflow{
		Steps:      steps,
		Mode:       models.ExecutionMode(mode),
		Complexity: models.Complexity(complexity),
	}
	return &t, nil
}

// loadSteps loads a task's steps in declared order, with contexts.
func (db *DB) loadSteps(taskID string) ([]*models.Step, error) {
	rows, err := db.Query(`
		SELECT s.id, s.role, s.instruction, s.constraints, s.depends_on, s.step_group, s.optional,
			s.status, s.raw_output, s.error,
			s.input_tokens, s.output_tokens, s.cache_tokens, s.cost, s.started_at, s.completed_at,
			c.summary, c.files, c.findings, c.source_step_id
		FROM steps s
		LEFT JOIN step_contexts c ON c.step_id = s.id
		WHERE s.task_id = ?
		ORDER BY s.position
	`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	defer rows.Close()

	var steps []*models.Step
	for rows.Next() {
		var s models.Step
		var constraints, dependsOn, rawOutput, stepErr sql.NullString
		var optional int
		var startedAt, completedAt sql.NullString
		var ctxSummary, ctxFiles, ctxFindings, ctxSource sql.NullString

		err := rows.Scan(&s.ID, &s.Role, &s.Instruction, &constraints, &dependsOn, &s.Group, &optional,
			&s.Status, &rawOutput, &stepErr,
			&s.Usage.InputTokens, &s.Usage.OutputTokens, &s.Usage.CacheTokens, &s.Usage.Cost,
			&startedAt, &completedAt,
			&ctxSummary, &ctxFiles, &ctxFindings, &ctxSource)
		if err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		s.Optional = optional != 0
		s.RawOutput = rawOutput.String
		s.Error = stepErr.String
		s.StartedAt = parseNullableTime(startedAt)
		s.CompletedAt = parseNullableTime(completedAt)
		if constraints.Valid {
			json.Unmarshal([]byte(constraints.String), &s.Constraints)
		}
		if dependsOn.Valid {
			json.Unmarshal([]byte(dependsOn.String), &s.DependsOn)
		}
		if ctxSummary.Valid {
			ctx := &models.StepContext{
				Summary:      ctxSummary.String,
				SourceStepID: ctxSource.String,
			}
			if ctxFiles.Valid {
				json.Unmarshal([]byte(ctxFiles.String), &ctx.Files)
			}
			if ctxFindings.Valid {
				json.Unmarshal([]byte(ctxFindings.String), &ctx.Findings)
			}
			s.Context = ctx
		}
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

// ListTasks returns task summaries, newest first, without their steps.
func (db *DB) ListTasks(limit int) ([]*models.Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT id, description, type, status, result, error,
			input_tokens, output_tokens, cache_tokens, cost, created_at, updated_at, completed_at
		FROM tasks ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var result, taskErr, completedAt sql.NullString
		var createdAt, updatedAt string
		err := rows.Scan(&t.ID, &t.Description, &t.Type, &t.Status, &result, &taskErr,
			&t.Usage.InputTokens, &t.Usage.OutputTokens, &t.Usage.CacheTokens, &t.Usage.Cost,
			&createdAt, &updatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Result = result.String
		t.Error = taskErr.String
		t.CreatedAt, _ = parseTime(createdAt)
		t.UpdatedAt, _ = parseTime(updatedAt)
		t.CompletedAt = parseNullableTime(completedAt)
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}

// DeleteTask removes a task and, via cascading foreign keys, its steps
// and contexts.
func (db *DB) DeleteTask(id string) error {
	_, err := db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
