package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "time/tzdata"

	"github.com/a2e-systems/a2e-exec/internal/apierrors"
)

// handle dispatches op against the shared data model and returns its
// result value (also written to outputPath, when the kind declares one),
// or a structured error.
func (e *Engine) handle(ctx *execContext, op Operation) (any, error) {
	switch op.Kind {
	case "ApiCall":
		return e.handleApiCall(ctx, op)
	case "FilterData":
		return e.handleFilterData(ctx, op)
	case "TransformData":
		return e.handleTransformData(ctx, op)
	case "StoreData":
		return e.handleStoreData(ctx, op)
	case "MergeData":
		return e.handleMergeData(ctx, op)
	case "Conditional":
		return e.handleConditional(ctx, op)
	case "Loop":
		return e.handleLoop(ctx, op)
	case "Wait":
		return e.handleWait(ctx, op)
	case "GetCurrentDateTime":
		return e.handleGetCurrentDateTime(ctx, op)
	case "ConvertTimezone":
		return e.handleConvertTimezone(ctx, op)
	case "DateCalculation":
		return e.handleDateCalculation(ctx, op)
	case "FormatText":
		return e.handleFormatText(ctx, op)
	case "ExtractText":
		return e.handleExtractText(ctx, op)
	case "ValidateData":
		return e.handleValidateData(ctx, op)
	case "Calculate":
		return e.handleCalculate(ctx, op)
	case "EncodeDecode":
		return e.handleEncodeDecode(ctx, op)
	default:
		return nil, apierrors.New(apierrors.CategoryExecution, fmt.Sprintf("unknown operation kind %q", op.Kind)).WithOperation(op.ID)
	}
}

func getString(config map[string]any, key string) string {
	v, _ := config[key].(string)
	return v
}

func getPath(dm *DataModel, op Operation, config map[string]any, key string) (any, error) {
	path := getString(config, key)
	if path == "" {
		return nil, apierrors.New(apierrors.CategoryDataError, fmt.Sprintf("missing required %q", key)).WithOperation(op.ID)
	}
	value, ok := dm.Get(path)
	if !ok {
		return nil, apierrors.New(apierrors.CategoryDataError, fmt.Sprintf("no data found at path: %s", path)).WithOperation(op.ID)
	}
	return value, nil
}

func setOutput(dm *DataModel, config map[string]any, value any) {
	if outputPath := getString(config, "outputPath"); outputPath != "" {
		dm.Set(outputPath, value)
	}
}

// --- ApiCall -----------------------------------------------------------

func (e *Engine) handleApiCall(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	method := strings.ToUpper(getString(config, "method"))
	if method == "" {
		method = http.MethodGet
	}
	rawURL := ctx.dataModel.ExpandTemplate(getString(config, "url"))
	if rawURL == "" {
		return nil, apierrors.New(apierrors.CategoryValidation, "ApiCall missing required url").WithOperation(op.ID)
	}

	headers, _ := config["headers"].(map[string]any)
	var bodyReader io.Reader
	if body, ok := config["body"]; ok && body != nil {
		data, err := json.Marshal(resolveObjectTemplates(ctx.dataModel, body))
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CategoryDataError, "failed to encode request body", err).WithOperation(op.ID)
		}
		bodyReader = bytes.NewReader(data)
	}

	timeout := 30 * time.Second
	if secs, ok := config["timeoutSeconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs * float64(time.Second))
	}
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx.ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryValidation, "invalid request", err).WithOperation(op.ID)
	}
	for k, v := range headers {
		req.Header.Set(k, ctx.dataModel.ExpandTemplate(fmt.Sprintf("%v", v)))
	}
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryNetwork, "request failed", err).WithOperation(op.ID)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryNetwork, "failed reading response body", err).WithOperation(op.ID)
	}

	if resp.StatusCode >= 400 {
		return nil, apierrors.APIErrorFromStatus(resp.StatusCode, fmt.Sprintf("upstream returned %d", resp.StatusCode)).WithOperation(op.ID)
	}

	var result any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &result); err != nil {
			result = string(data)
		}
	}

	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func resolveObjectTemplates(dm *DataModel, v any) any {
	switch t := v.(type) {
	case string:
		return dm.ExpandTemplate(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = resolveObjectTemplates(dm, val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = resolveObjectTemplates(dm, val)
		}
		return out
	default:
		return v
	}
}

// --- FilterData ----------------------------------------------------------

func (e *Engine) handleFilterData(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	data, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}

	items, ok := data.([]any)
	if !ok {
		return nil, apierrors.New(apierrors.CategoryDataError, fmt.Sprintf("FilterData requires array input, got %T", data)).WithOperation(op.ID)
	}

	conditions, _ := config["conditions"].([]any)
	filtered := items
	for _, raw := range conditions {
		cond, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		field := getString(cond, "field")
		operator := getString(cond, "operator")
		value := cond["value"]

		var next []any
		for _, item := range filtered {
			obj, _ := item.(map[string]any)
			var fieldValue any
			if obj != nil {
				fieldValue = obj[field]
			}
			if evaluateCondition(fieldValue, operator, value) {
				next = append(next, item)
			}
		}
		filtered = next
	}

	result := filtered
	if result == nil {
		result = []any{}
	}
	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func evaluateCondition(left any, operator string, right any) bool {
	switch operator {
	case "==":
		return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right) && left != nil
	case "!=":
		return fmt.Sprintf("%v", left) != fmt.Sprintf("%v", right)
	case "contains":
		return strings.Contains(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right))
	case ">", "<", ">=", "<=":
		lf, lok := asFloat(left)
		rf, rok := asFloat(right)
		if !lok || !rok {
			return false
		}
		switch operator {
		case ">":
			return lf > rf
		case "<":
			return lf < rf
		case ">=":
			return lf >= rf
		case "<=":
			return lf <= rf
		}
	}
	return false
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// --- TransformData -------------------------------------------------------

func (e *Engine) handleTransformData(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	data, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}

	transform := getString(config, "transform")
	var result any

	switch transform {
	case "sort":
		items, ok := data.([]any)
		if !ok {
			return nil, apierrors.New(apierrors.CategoryDataError, "sort transform requires array input").WithOperation(op.ID)
		}
		field := getString(config, "field")
		sorted := append([]any{}, items...)
		sort.SliceStable(sorted, func(i, j int) bool {
			fi, fj := fieldOf(sorted[i], field), fieldOf(sorted[j], field)
			af, aok := asFloat(fi)
			bf, bok := asFloat(fj)
			if aok && bok {
				return af < bf
			}
			return fmt.Sprintf("%v", fi) < fmt.Sprintf("%v", fj)
		})
		if desc, _ := config["descending"].(bool); desc {
			for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
		result = sorted
	case "map":
		items, ok := data.([]any)
		if !ok {
			return nil, apierrors.New(apierrors.CategoryDataError, "map transform requires array input").WithOperation(op.ID)
		}
		field := getString(config, "field")
		if field == "" {
			result = items
			break
		}
		mapped := make([]any, 0, len(items))
		for _, item := range items {
			mapped = append(mapped, fieldOf(item, field))
		}
		result = mapped
	case "reduce":
		items, ok := data.([]any)
		if !ok {
			return nil, apierrors.New(apierrors.CategoryDataError, "reduce transform requires array input").WithOperation(op.ID)
		}
		reducer := getString(config, "reducer")
		field := getString(config, "field")
		result, err = reduceArray(items, field, reducer)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CategoryDataError, "reduce failed", err).WithOperation(op.ID)
		}
	default:
		result = data
	}

	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func fieldOf(item any, field string) any {
	if field == "" {
		return item
	}
	obj, ok := item.(map[string]any)
	if !ok {
		return nil
	}
	return obj[field]
}

func reduceArray(items []any, field, reducer string) (any, error) {
	var values []float64
	for _, item := range items {
		v := fieldOf(item, field)
		f, ok := asFloat(v)
		if !ok {
			continue
		}
		values = append(values, f)
	}
	switch reducer {
	case "sum":
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total, nil
	case "average":
		if len(values) == 0 {
			return nil, fmt.Errorf("average of empty array")
		}
		total := 0.0
		for _, v := range values {
			total += v
		}
		return total / float64(len(values)), nil
	default:
		return nil, fmt.Errorf("unknown reducer %q", reducer)
	}
}

// --- StoreData -------------------------------------------------------------

func (e *Engine) handleStoreData(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	data, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	backendName := getString(config, "storage")
	key := getString(config, "key")
	if backendName == "" || key == "" {
		return nil, apierrors.New(apierrors.CategoryValidation, "StoreData requires storage and key").WithOperation(op.ID)
	}

	if e.Storage == nil {
		return nil, apierrors.New(apierrors.CategoryExecution, "no storage backends configured").WithOperation(op.ID)
	}
	if err := e.Storage.Put(ctx.ctx, backendName, key, data); err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryExecution, "store failed", err).WithOperation(op.ID)
	}

	result := map[string]any{"stored": true}
	setOutput(ctx.dataModel, config, result)
	return result, nil
}

// --- MergeData ---------------------------------------------------------

func (e *Engine) handleMergeData(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	sources, _ := config["sources"].([]any)

	asArray, _ := config["asArray"].(bool)
	if asArray {
		var merged []any
		for _, raw := range sources {
			path, _ := raw.(string)
			v, ok := ctx.dataModel.Get(path)
			if !ok {
				continue
			}
			merged = append(merged, v)
		}
		if merged == nil {
			merged = []any{}
		}
		setOutput(ctx.dataModel, config, merged)
		return merged, nil
	}

	merged := make(map[string]any)
	for _, raw := range sources {
		path, _ := raw.(string)
		v, ok := ctx.dataModel.Get(path)
		if !ok {
			continue
		}
		if obj, ok := v.(map[string]any); ok {
			for k, val := range obj {
				merged[k] = val
			}
		}
	}
	setOutput(ctx.dataModel, config, merged)
	return merged, nil
}

// --- Conditional ---------------------------------------------------------

func (e *Engine) handleConditional(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	left, _ := resolveFieldOrLiteral(ctx.dataModel, config["left"])
	operator := getString(config, "operator")
	right, _ := resolveFieldOrLiteral(ctx.dataModel, config["right"])

	branch := "ifFalse"
	if evaluateCondition(left, operator, right) {
		branch = "ifTrue"
	}
	target := getString(config, branch)
	return map[string]any{"branch": branch, "next": target}, nil
}

func resolveFieldOrLiteral(dm *DataModel, v any) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		if path, ok := m["path"].(string); ok {
			return dm.Get(path)
		}
	}
	if s, ok := v.(string); ok && strings.HasPrefix(s, "/") {
		return dm.Get(s)
	}
	return v, true
}

// --- Loop -------------------------------------------------------------

func (e *Engine) handleLoop(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	data, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	items, ok := data.([]any)
	if !ok {
		return nil, apierrors.New(apierrors.CategoryDataError, "Loop requires array input").WithOperation(op.ID)
	}

	bodyIDs, _ := config["operations"].([]any)
	if maxIterations, ok := config["maxIterations"].(float64); ok && maxIterations > 0 && int(maxIterations) < len(items) {
		items = items[:int(maxIterations)]
	}
	results := make([]any, 0, len(items))

	for i, item := range items {
		ctx.dataModel.Set(fmt.Sprintf("/loop/%s/item", op.ID), item)
		ctx.dataModel.Set(fmt.Sprintf("/loop/%s/index", op.ID), i)

		var iterationResult any
		for _, rawID := range bodyIDs {
			bodyID, _ := rawID.(string)
			bodyOp, ok := ctx.workflow.Get(bodyID)
			if !ok {
				continue
			}
			res, err := e.handle(ctx, bodyOp)
			if err != nil {
				iterationResult = map[string]any{"error": err.Error()}
				continue
			}
			iterationResult = res
		}
		results = append(results, iterationResult)
	}

	setOutput(ctx.dataModel, config, results)
	return results, nil
}

// --- Wait ---------------------------------------------------------------

func (e *Engine) handleWait(ctx *execContext, op Operation) (any, error) {
	durationMs, _ := op.Config["duration"].(float64)
	d := time.Duration(durationMs) * time.Millisecond

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.ctx.Done():
		return nil, apierrors.Wrap(apierrors.CategoryExecution, "wait cancelled", ctx.ctx.Err()).WithOperation(op.ID)
	case <-timer.C:
	}
	return nil, nil
}

// --- GetCurrentDateTime / ConvertTimezone / DateCalculation ---------------

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func formatTime(t time.Time, format, formatString string) any {
	switch format {
	case "timestamp":
		return float64(t.UnixNano()) / float64(time.Second)
	case "custom":
		if formatString != "" {
			return t.Format(formatString)
		}
		return t.Format(time.RFC3339)
	default:
		return t.Format(time.RFC3339)
	}
}

func (e *Engine) handleGetCurrentDateTime(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	loc, err := loadLocation(getString(config, "timezone"))
	if err != nil {
		loc = time.UTC
	}
	now := time.Now().In(loc)
	result := formatTime(now, getString(config, "format"), getString(config, "formatString"))
	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func parseDateValue(v any) (time.Time, error) {
	switch t := v.(type) {
	case float64:
		return time.Unix(int64(t), 0).UTC(), nil
	case string:
		normalized := strings.Replace(t, "Z", "+00:00", 1)
		if parsed, err := time.Parse(time.RFC3339, normalized); err == nil {
			return parsed, nil
		}
		if parsed, err := time.Parse("2006-01-02 15:04:05", t); err == nil {
			return parsed, nil
		}
		return time.Time{}, fmt.Errorf("unable to parse date string: %s", t)
	case map[string]any:
		year, month, day := intField(t, "year", time.Now().Year()), intField(t, "month", int(time.Now().Month())), intField(t, "day", time.Now().Day())
		hour, minute, second := intField(t, "hour", 0), intField(t, "minute", 0), intField(t, "second", 0)
		return time.Date(year, time.Month(month), day, hour, minute, second, 0, time.UTC), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported date format: %T", v)
	}
}

func intField(m map[string]any, key string, def int) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return def
}

func (e *Engine) handleConvertTimezone(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	input, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	dt, err := parseDateValue(input)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryDataError, "failed to parse input date", err).WithOperation(op.ID)
	}

	if fromTZ := getString(config, "fromTimezone"); fromTZ != "" {
		loc, err := loadLocation(fromTZ)
		if err == nil {
			dt = time.Date(dt.Year(), dt.Month(), dt.Day(), dt.Hour(), dt.Minute(), dt.Second(), dt.Nanosecond(), loc)
		}
	}

	toTZ, err := loadLocation(getString(config, "toTimezone"))
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryValidation, "unknown target timezone", err).WithOperation(op.ID)
	}
	converted := dt.In(toTZ)

	result := formatTime(converted, getString(config, "format"), getString(config, "formatString"))
	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func (e *Engine) handleDateCalculation(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	input, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	dt, err := parseDateValue(input)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryDataError, "failed to parse input date", err).WithOperation(op.ID)
	}
	if tzName := getString(config, "timezone"); tzName != "" {
		loc, lerr := loadLocation(tzName)
		if lerr == nil {
			dt = dt.In(loc)
		}
	}

	// Years/months/days are calendar-unit deltas applied via AddDate, not
	// folded into a fixed-day approximation; hours/minutes/seconds are a
	// separate sub-day duration added on top.
	years := numField(config, "years")
	months := numField(config, "months")
	days := numField(config, "days")
	sub := time.Duration(numField(config, "hours"))*time.Hour +
		time.Duration(numField(config, "minutes"))*time.Minute +
		time.Duration(numField(config, "seconds"))*time.Second

	var result time.Time
	switch getString(config, "operation") {
	case "add":
		result = dt.AddDate(years, months, days).Add(sub)
	case "subtract":
		result = dt.AddDate(-years, -months, -days).Add(-sub)
	default:
		return nil, apierrors.New(apierrors.CategoryValidation, "DateCalculation requires operation add|subtract").WithOperation(op.ID)
	}

	out := formatTime(result, getString(config, "format"), getString(config, "formatString"))
	setOutput(ctx.dataModel, config, out)
	return out, nil
}

func numField(config map[string]any, key string) int {
	if v, ok := config[key].(float64); ok {
		return int(v)
	}
	return 0
}

// --- FormatText / ExtractText --------------------------------------------

func (e *Engine) handleFormatText(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	mode := getString(config, "mode")
	var input string
	if v, ok := config["inputPath"]; ok && v != "" {
		raw, err := getPath(ctx.dataModel, op, config, "inputPath")
		if err != nil {
			return nil, err
		}
		input = fmt.Sprintf("%v", raw)
	} else {
		input = getString(config, "text")
	}

	var result string
	switch mode {
	case "upper":
		result = strings.ToUpper(input)
	case "lower":
		result = strings.ToLower(input)
	case "title":
		result = strings.Title(strings.ToLower(input))
	case "trim":
		result = strings.TrimSpace(input)
	case "replace":
		result = strings.ReplaceAll(input, getString(config, "find"), getString(config, "replace"))
	case "template":
		result = ctx.dataModel.ExpandTemplate(getString(config, "template"))
	default:
		result = ctx.dataModel.ExpandTemplate(input)
	}

	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func (e *Engine) handleExtractText(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	input, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	text := fmt.Sprintf("%v", input)
	pattern := getString(config, "pattern")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, apierrors.Wrap(apierrors.CategoryDataError, "malformed regex pattern", err).WithOperation(op.ID)
	}

	var result any
	if all, _ := config["findAll"].(bool); all {
		result = toAnySlice(re.FindAllString(text, -1))
	} else {
		result = re.FindString(text)
	}

	setOutput(ctx.dataModel, config, result)
	return result, nil
}

func toAnySlice(matches []string) []any {
	out := make([]any, len(matches))
	for i, m := range matches {
		out[i] = m
	}
	return out
}

// --- ValidateData ----------------------------------------------------------

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9()\-\s]{7,}$`)
)

func (e *Engine) handleValidateData(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	input, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	rule := getString(config, "rule")
	str := fmt.Sprintf("%v", input)

	var valid bool
	var validationErr string

	switch rule {
	case "email":
		valid = emailPattern.MatchString(str)
	case "url":
		_, perr := url.ParseRequestURI(str)
		valid = perr == nil
	case "number":
		_, perr := strconv.ParseFloat(str, 64)
		valid = perr == nil
	case "integer":
		_, perr := strconv.Atoi(str)
		valid = perr == nil
	case "phone":
		valid = phonePattern.MatchString(str)
	case "date":
		_, perr := parseDateValue(input)
		valid = perr == nil
	case "custom-regex":
		re, rerr := regexp.Compile(getString(config, "pattern"))
		if rerr != nil {
			validationErr = "malformed regex pattern"
		} else {
			valid = re.MatchString(str)
		}
	default:
		validationErr = fmt.Sprintf("unknown validation rule %q", rule)
	}

	result := map[string]any{"valid": valid, "value": input}
	if validationErr != "" {
		result["error"] = validationErr
	}
	setOutput(ctx.dataModel, config, result)
	return result, nil
}

// --- Calculate ------------------------------------------------------------

func (e *Engine) handleCalculate(ctx *execContext, op Operation) (any, error) {
	config := op.Config

	if reducer := getString(config, "reducer"); reducer != "" {
		input, err := getPath(ctx.dataModel, op, config, "inputPath")
		if err != nil {
			return nil, err
		}
		items, ok := input.([]any)
		if !ok {
			return nil, apierrors.New(apierrors.CategoryDataError, "Calculate reducer requires array input").WithOperation(op.ID)
		}
		result, err := reduceArray(items, getString(config, "field"), reducer)
		if err != nil {
			return nil, apierrors.Wrap(apierrors.CategoryDataError, "calculation failed", err).WithOperation(op.ID)
		}
		setOutput(ctx.dataModel, config, result)
		return result, nil
	}

	left, _ := resolveFieldOrLiteral(ctx.dataModel, config["left"])
	operator := getString(config, "operator")
	leftF, lok := asFloat(left)
	if !lok {
		return nil, apierrors.New(apierrors.CategoryDataError, "Calculate left operand is not numeric").WithOperation(op.ID)
	}

	if operator == "negate" || operator == "abs" || operator == "sqrt" {
		var result float64
		switch operator {
		case "negate":
			result = -leftF
		case "abs":
			result = math.Abs(leftF)
		case "sqrt":
			if leftF < 0 {
				return nil, apierrors.New(apierrors.CategoryDataError, "sqrt of negative number").WithOperation(op.ID)
			}
			result = math.Sqrt(leftF)
		}
		setOutput(ctx.dataModel, config, result)
		return result, nil
	}

	right, _ := resolveFieldOrLiteral(ctx.dataModel, config["right"])
	rightF, rok := asFloat(right)
	if !rok {
		return nil, apierrors.New(apierrors.CategoryDataError, "Calculate right operand is not numeric").WithOperation(op.ID)
	}

	var result float64
	switch operator {
	case "+":
		result = leftF + rightF
	case "-":
		result = leftF - rightF
	case "*":
		result = leftF * rightF
	case "/":
		if rightF == 0 {
			return nil, apierrors.New(apierrors.CategoryDataError, "division by zero").WithOperation(op.ID)
		}
		result = leftF / rightF
	default:
		return nil, apierrors.New(apierrors.CategoryValidation, fmt.Sprintf("unknown operator %q", operator)).WithOperation(op.ID)
	}

	setOutput(ctx.dataModel, config, result)
	return result, nil
}

// --- EncodeDecode -----------------------------------------------------------

func (e *Engine) handleEncodeDecode(ctx *execContext, op Operation) (any, error) {
	config := op.Config
	input, err := getPath(ctx.dataModel, op, config, "inputPath")
	if err != nil {
		return nil, err
	}
	str := fmt.Sprintf("%v", input)
	mode := getString(config, "mode")  // "encode" | "decode"
	format := getString(config, "format") // "base64" | "url" | "html"

	var result string
	switch format {
	case "base64":
		if mode == "decode" {
			data, derr := base64.StdEncoding.DecodeString(str)
			if derr != nil {
				return nil, apierrors.Wrap(apierrors.CategoryDataError, "invalid base64 input", derr).WithOperation(op.ID)
			}
			result = string(data)
		} else {
			result = base64.StdEncoding.EncodeToString([]byte(str))
		}
	case "url":
		if mode == "decode" {
			decoded, derr := url.QueryUnescape(str)
			if derr != nil {
				return nil, apierrors.Wrap(apierrors.CategoryDataError, "invalid URL-encoded input", derr).WithOperation(op.ID)
			}
			result = decoded
		} else {
			result = url.QueryEscape(str)
		}
	case "html":
		if mode == "decode" {
			result = html.UnescapeString(str)
		} else {
			result = html.EscapeString(str)
		}
	default:
		return nil, apierrors.New(apierrors.CategoryValidation, fmt.Sprintf("unknown encode/decode format %q", format)).WithOperation(op.ID)
	}

	setOutput(ctx.dataModel, config, result)
	return result, nil
}
