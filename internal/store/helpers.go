package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"carebridge/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalList encodes a string slice as JSON for a nullable text column.
func marshalList(list []string) (interface{}, error) {
	if len(list) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal list: %w", err)
	}
	return string(b), nil
}

// unmarshalList decodes a JSON text column into a string slice.
func unmarshalList(col sql.NullString) ([]string, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(col.String), &list); err != nil {
		return nil, fmt.Errorf("failed to unmarshal list: %w", err)
	}
	return list, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanProfile scans a UserProfile from a row of the user_profiles table.
func scanProfile(row rowScanner) (*models.UserProfile, error) {
	var p models.UserProfile
	var name sql.NullString
	var age sql.NullInt64
	var history, conditions, medications sql.NullString
	err := row.Scan(&p.PhoneNumber, &p.State, &p.Status, &name, &age,
		&history, &conditions, &medications, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Name = name.String
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	if p.MedicalHistory, err = unmarshalList(history); err != nil {
		return nil, err
	}
	if p.Conditions, err = unmarshalList(conditions); err != nil {
		return nil, err
	}
	if p.Medications, err = unmarshalList(medications); err != nil {
		return nil, err
	}
	return &p, nil
}

// scanHandoff scans a HandoffRequest from a row of the handoff_requests table.
func scanHandoff(row rowScanner) (*models.HandoffRequest, error) {
	var r models.HandoffRequest
	var agentID sql.NullString
	var assignedAt sql.NullTime
	err := row.Scan(&r.ID, &r.PhoneNumber, &r.Status, &agentID, &r.CreatedAt, &assignedAt)
	if err != nil {
		return nil, err
	}
	r.AgentID = agentID.String
	if assignedAt.Valid {
		t := assignedAt.Time
		r.AssignedAt = &t
	}
	return &r, nil
}

// profileArgs converts a profile into the column value list shared by the
// SQLite and PostgreSQL upserts.
func profileArgs(p models.UserProfile, now time.Time) ([]interface{}, error) {
	history, err := marshalList(p.MedicalHistory)
	if err != nil {
		return nil, err
	}
	conditions, err := marshalList(p.Conditions)
	if err != nil {
		return nil, err
	}
	medications, err := marshalList(p.Medications)
	if err != nil {
		return nil, err
	}
	var age interface{}
	if p.Age != nil {
		age = *p.Age
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return []interface{}{
		p.PhoneNumber, string(p.State), string(p.Status), nilIfEmpty(p.Name), age,
		history, conditions, medications, createdAt, now,
	}, nil
}
