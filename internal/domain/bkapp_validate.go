package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed bkapp.schema.json
var bkappSchemaJSON []byte

const bkappSchemaURL = "bkapp.schema.json"

var loadBkAppSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(bkappSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal bkapp schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(bkappSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add bkapp schema: %w", err)
	}
	return c.Compile(bkappSchemaURL)
})

var schemaPrinter = message.NewPrinter(language.English)

// DecodeBkAppPayload 校验外部提交的模型并解码。metadata.name 总是被 name 覆盖，
// 任何字段失败都不会返回部分结果。
func DecodeBkAppPayload(payload map[string]any, name string) (*BkAppResource, error) {
	doc := maps.Clone(payload)
	if doc == nil {
		doc = map[string]any{}
	}
	meta, _ := doc["metadata"].(map[string]any)
	meta = maps.Clone(meta)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["name"] = name
	doc["metadata"] = meta

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validateAgainstSchema(raw); err != nil {
		return nil, err
	}

	var res BkAppResource
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := ValidateBkAppResource(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

func validateAgainstSchema(raw []byte) error {
	sch, err := loadBkAppSchema()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	err = sch.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	out := &ValidationError{}
	collectSchemaErrors(ve, out)
	return out.OrNil()
}

// collectSchemaErrors 只收集叶子错误，一个字段一条。
func collectSchemaErrors(ve *jsonschema.ValidationError, out *ValidationError) {
	if len(ve.Causes) == 0 {
		out.Add(instancePath(ve.InstanceLocation), "%s", ve.ErrorKind.LocalizedString(schemaPrinter))
		return
	}
	for _, c := range ve.Causes {
		collectSchemaErrors(c, out)
	}
}

// instancePath 把 ["spec","processes","0","replicas"] 渲染成 spec.processes[0].replicas。
func instancePath(loc []string) string {
	var b strings.Builder
	for _, seg := range loc {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg)
	}
	if b.Len() == 0 {
		return "(root)"
	}
	return b.String()
}

// ValidateBkAppResource 做结构校验之外的语义校验。
func ValidateBkAppResource(res *BkAppResource) error {
	ve := &ValidationError{}
	spec := &res.Spec

	if res.Metadata.Name == "" {
		ve.Add("metadata.name", "is required")
	}
	if len(spec.Processes) == 0 {
		ve.Add("spec.processes", "at least one process is required")
	}

	procs := make(map[string]bool, len(spec.Processes))
	for i, p := range spec.Processes {
		path := fmt.Sprintf("spec.processes[%d]", i)
		if procs[p.Name] {
			ve.Add(path+".name", "duplicate process name %q", p.Name)
		}
		procs[p.Name] = true
		if p.Autoscaling != nil && p.Autoscaling.MinReplicas > p.Autoscaling.MaxReplicas {
			ve.Add(path+".autoscaling", "minReplicas must not exceed maxReplicas")
		}
		if res.APIVersion == APIVersionV1Alpha1 && p.Image == "" {
			ve.Add(path+".image", "is required for %s", APIVersionV1Alpha1)
		}
	}
	if res.APIVersion != APIVersionV1Alpha1 && (spec.Build == nil || spec.Build.Image == "") {
		ve.Add("spec.build.image", "is required")
	}

	if o := spec.EnvOverlay; o != nil {
		seen := map[string]bool{}
		for i, r := range o.Replicas {
			path := fmt.Sprintf("spec.envOverlay.replicas[%d]", i)
			if !procs[r.Process] {
				ve.Add(path+".process", "unknown process %q", r.Process)
			}
			key := string(r.EnvName) + "/" + r.Process
			if seen[key] {
				ve.Add(path, "duplicate overlay for process %q in %s", r.Process, r.EnvName)
			}
			seen[key] = true
		}
		for i, a := range o.Autoscaling {
			path := fmt.Sprintf("spec.envOverlay.autoscaling[%d]", i)
			if !procs[a.Process] {
				ve.Add(path+".process", "unknown process %q", a.Process)
			}
			if a.Spec.MinReplicas > a.Spec.MaxReplicas {
				ve.Add(path+".spec", "minReplicas must not exceed maxReplicas")
			}
		}
	}

	mountNames := map[string]bool{}
	for i, m := range spec.Mounts {
		if mountNames[m.Name] {
			ve.Add(fmt.Sprintf("spec.mounts[%d].name", i), "duplicate mount name %q", m.Name)
		}
		mountNames[m.Name] = true
	}
	return ve.OrNil()
}
