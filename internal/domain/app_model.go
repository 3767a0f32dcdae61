package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	jsoncanonicalizer "github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
	"sigs.k8s.io/yaml"
)

// AppModelResource 是模块当前生效模型的指针，只改指向，不改内容。
type AppModelResource struct {
	ID            string            `json:"id"`
	ApplicationID string            `json:"application_id"`
	ModuleID      string            `json:"module_id"`
	RevisionID    string            `json:"revision_id"`
	Revision      *AppModelRevision `json:"revision,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AppModelRevision 是某次模型变更的不可变快照。创建后只允许修改状态标记。
type AppModelRevision struct {
	ID            string          `json:"id"`
	ModuleID      string          `json:"module_id"`
	Number        int             `json:"number"`
	Version       string          `json:"version"`
	JSONValue     json.RawMessage `json:"json_value"`
	YAMLValue     string          `json:"yaml_value"`
	Digest        string          `json:"digest"`
	DeployedValue json.RawMessage `json:"deployed_value,omitempty"`
	HasDeployed   bool            `json:"has_deployed"`
	IsDraft       bool            `json:"is_draft"`
	IsDeleted     bool            `json:"is_deleted"`
	Manager       FieldMgrName    `json:"manager"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewAppModelRevision 从已校验的模型生成快照，结构化与文本两种形式在此一次算好。
func NewAppModelRevision(id, moduleID string, number int, res *BkAppResource, manager FieldMgrName) (*AppModelRevision, error) {
	canonical, err := CanonicalJSON(res)
	if err != nil {
		return nil, err
	}
	text, err := yaml.JSONToYAML(canonical)
	if err != nil {
		return nil, fmt.Errorf("render yaml: %w", err)
	}
	sum := sha256.Sum256(canonical)
	now := time.Now()
	return &AppModelRevision{
		ID:        id,
		ModuleID:  moduleID,
		Number:    number,
		Version:   res.APIVersion,
		JSONValue: canonical,
		YAMLValue: string(text),
		Digest:    hex.EncodeToString(sum[:]),
		Manager:   manager,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Resource 把快照解码为模型，返回的对象可自由修改。
func (r *AppModelRevision) Resource() (*BkAppResource, error) {
	var res BkAppResource
	if err := json.Unmarshal(r.JSONValue, &res); err != nil {
		return nil, fmt.Errorf("decode revision %s: %w", r.ID, err)
	}
	return &res, nil
}

// MarkDeployed 记录实际下发到集群的内容。
func (r *AppModelRevision) MarkDeployed(deployed json.RawMessage) {
	r.DeployedValue = deployed
	r.HasDeployed = true
	r.UpdatedAt = time.Now()
}

// CanonicalJSON 按 RFC 8785 规范化输出，同样的逻辑内容一定得到同样的字节。
func CanonicalJSON(res *BkAppResource) ([]byte, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("marshal bkapp: %w", err)
	}
	out, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize bkapp: %w", err)
	}
	return out, nil
}

// ResourceDigest 是规范化 JSON 的 sha256，用于判断两份模型是否等价。
func ResourceDigest(res *BkAppResource) (string, error) {
	raw, err := CanonicalJSON(res)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalYAML 返回稳定的 YAML 文本，key 按字典序排列。
func CanonicalYAML(res *BkAppResource) (string, error) {
	raw, err := CanonicalJSON(res)
	if err != nil {
		return "", err
	}
	out, err := yaml.JSONToYAML(raw)
	if err != nil {
		return "", fmt.Errorf("render yaml: %w", err)
	}
	return string(out), nil
}

// ToUnstructured 返回模型的通用 map 形式，供动态客户端下发。
func (res *BkAppResource) ToUnstructured() (map[string]any, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// DeepCopy 通过序列化实现深拷贝。
func (res *BkAppResource) DeepCopy() *BkAppResource {
	raw, err := json.Marshal(res)
	if err != nil {
		panic(fmt.Sprintf("marshal bkapp: %v", err))
	}
	var out BkAppResource
	if err := json.Unmarshal(raw, &out); err != nil {
		panic(fmt.Sprintf("unmarshal bkapp: %v", err))
	}
	return &out
}
