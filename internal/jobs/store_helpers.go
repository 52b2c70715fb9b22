package jobs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const jobColumns = "id, session_id, file_ids_json, merge, max_volume_bytes, output_format, naming_template, options_json, metadata_json, status, progress, current_file, output_files_json, warnings_json, error_message, error_kind, created_at, updated_at, completed_at"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id             string
		sessionID      string
		fileIDs        sql.NullString
		merge          sql.NullInt64
		maxVolumeBytes sql.NullInt64
		outputFormat   sql.NullString
		namingTemplate sql.NullString
		optionsJSON    sql.NullString
		metadataJSON   sql.NullString
		statusStr      string
		progress       sql.NullFloat64
		currentFile    sql.NullString
		outputFiles    sql.NullString
		warnings       sql.NullString
		errorMessage   sql.NullString
		errorKind      sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
		completedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sessionID,
		&fileIDs,
		&merge,
		&maxVolumeBytes,
		&outputFormat,
		&namingTemplate,
		&optionsJSON,
		&metadataJSON,
		&statusStr,
		&progress,
		&currentFile,
		&outputFiles,
		&warnings,
		&errorMessage,
		&errorKind,
		&createdRaw,
		&updatedRaw,
		&completedRaw,
	); err != nil {
		return nil, err
	}

	job := &Job{
		ID:             id,
		SessionID:      sessionID,
		FileIDs:        decodeStrings(fileIDs.String),
		Merge:          merge.Int64 != 0,
		MaxVolumeBytes: maxVolumeBytes.Int64,
		OutputFormat:   Format(outputFormat.String),
		NamingTemplate: namingTemplate.String,
		OptionsJSON:    optionsJSON.String,
		MetadataJSON:   metadataJSON.String,
		Status:         Status(statusStr),
		Progress:       progress.Float64,
		CurrentFile:    currentFile.String,
		OutputFiles:    decodeStrings(outputFiles.String),
		Warnings:       decodeStrings(warnings.String),
		ErrorMessage:   errorMessage.String,
		ErrorKind:      ErrorKind(errorKind.String),
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		job.UpdatedAt = updated
	}
	if completedRaw.Valid {
		if completed, err := parseTimeString(completedRaw.String); err == nil {
			job.CompletedAt = &completed
		}
	}
	return job, nil
}

func encodeStrings(values []string) any {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return string(data)
}

func decodeStrings(raw string) []string {
	if raw == "" {
		return nil
	}
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil
	}
	return values
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
