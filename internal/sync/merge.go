package sync

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
)

// applyEventWithPrevious is the per-entity conflict resolver. It applies one
// remote event using the previous_data half of the payload wrapper:
//
//   - update events on merge tables get a field-level three-way merge, where only
//     fields that changed between previous_data and new_data are written, so
//     concurrent edits to different fields both survive. Same-field edits
//     converge last-writer-wins because clients replay events in server_seq
//     order.
//   - updates with empty or unparseable previous_data, and updates on tables
//     outside the merge set, fall back to a full upsert of new_data. Updates
//     never resurrect a missing row.
//   - append-only tables accept create only.
//   - create/delete/soft_delete behave as in applyEvent.
func applyEventWithPrevious(tx *sql.Tx, event Event, validator EntityValidator, previousData json.RawMessage) (applyResult, error) {
	if event.ActionType != "update" {
		return applyEvent(tx, event, validator)
	}

	if !validator(event.EntityType) {
		return applyResult{}, fmt.Errorf("invalid entity type: %q", event.EntityType)
	}
	if event.EntityID == "" {
		return applyResult{}, fmt.Errorf("empty entity ID for update event")
	}
	if appendOnlyEntities[event.EntityType] {
		return applyResult{}, fmt.Errorf("%s is append-only: update event rejected", event.EntityType)
	}

	prevFields, ok := parseFields(previousData)
	if !ok || len(prevFields) == 0 {
		// No baseline to diff against, so full-state update of existing rows only.
		return upsertEntityIfExists(tx, event.EntityType, event.EntityID, event.Payload)
	}

	newFields, ok := parseFields(event.Payload)
	if !ok || len(newFields) == 0 {
		return applyResult{}, fmt.Errorf("merge %s/%s: unparseable new_data", event.EntityType, event.EntityID)
	}

	diff := diffFields(prevFields, newFields)
	if len(diff) == 0 {
		// Nothing changed; explicit no-op.
		return applyResult{}, nil
	}

	oldData, err := loadExistingRow(tx, event.EntityType, event.EntityID)
	if err != nil {
		return applyResult{}, err
	}
	if oldData == nil {
		// Row missing locally; partial update has nothing to merge onto and
		// must not resurrect it.
		return upsertEntityIfExists(tx, event.EntityType, event.EntityID, event.Payload)
	}

	normalizeFieldsForDB(event.EntityType, diff)

	setClauses := make([]string, 0, len(diff))
	args := make([]any, 0, len(diff)+1)
	for _, k := range sortedKeys(diff) {
		if !validColumnName.MatchString(k) {
			return applyResult{}, fmt.Errorf("merge %s/%s: invalid column name: %q", event.EntityType, event.EntityID, k)
		}
		setClauses = append(setClauses, k+" = ?")
		args = append(args, diff[k])
	}
	args = append(args, event.EntityID)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", event.EntityType, strings.Join(setClauses, ", "))
	slog.Debug("merge update", "table", event.EntityType, "id", event.EntityID, "fields", len(diff))
	if _, err := tx.Exec(query, args...); err != nil {
		return applyResult{}, fmt.Errorf("merge %s/%s: %w", event.EntityType, event.EntityID, err)
	}

	return applyResult{Overwritten: true, OldData: oldData}, nil
}

// parseFields decodes a JSON object into a field map. ok is false when the
// data is missing or not an object.
func parseFields(data json.RawMessage) (map[string]any, bool) {
	if len(data) == 0 {
		return nil, false
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// diffFields returns the fields of new whose values differ from prev.
// Fields absent from prev count as changed; the id field never diffs.
func diffFields(prev, new map[string]any) map[string]any {
	diff := make(map[string]any)
	for k, newVal := range new {
		if k == "id" {
			continue
		}
		prevVal, ok := prev[k]
		if !ok || !reflect.DeepEqual(prevVal, newVal) {
			diff[k] = newVal
		}
	}
	return diff
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
