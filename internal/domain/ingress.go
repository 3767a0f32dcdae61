package domain

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

const DefaultPathPrefix = "/"

// AppDomainSource 标记域名的来源，决定其是否参与批量重新分配。
type AppDomainSource string

const (
	AppDomainSourceAutoGen     AppDomainSource = "auto_gen"
	AppDomainSourceCustom      AppDomainSource = "custom"
	AppDomainSourceIndependent AppDomainSource = "independent"
)

// Reassignable 只有自动生成与自定义来源的域名可以被转移或清理。
func (s AppDomainSource) Reassignable() bool {
	return s == AppDomainSourceAutoGen || s == AppDomainSourceCustom
}

// AppDomain 是绑定到某个应用环境的域名，host 全局唯一。
type AppDomain struct {
	ID            string          `json:"id"`
	Host          string          `json:"host"`
	PathPrefix    string          `json:"path_prefix"`
	HTTPSEnabled  bool            `json:"https_enabled"`
	Source        AppDomainSource `json:"source"`
	ApplicationID string          `json:"application_id"`
	ModuleID      string          `json:"module_id"`
	Environment   EnvName         `json:"environment"`
	CertID        string          `json:"cert_id,omitempty"`
	SharedCertID  string          `json:"shared_cert_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// BelongsTo 判断域名是否绑定在指定模块环境上。
func (d *AppDomain) BelongsTo(moduleID string, env EnvName) bool {
	return d.ModuleID == moduleID && d.Environment == env
}

// Domain 是用户单独配置的独立域名，带有显式路径前缀。
type Domain struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PathPrefix    string    `json:"path_prefix"`
	HTTPSEnabled  bool      `json:"https_enabled"`
	ApplicationID string    `json:"application_id"`
	ModuleID      string    `json:"module_id"`
	Environment   EnvName   `json:"environment"`
	CertID        string    `json:"cert_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasRootPathPrefix 路径前缀为 "/" 时 Ingress 名称不需要区分后缀。
func (d *Domain) HasRootPathPrefix() bool {
	return d.PathPrefix == "" || d.PathPrefix == DefaultPathPrefix
}

// AppDomainCert 是与域名直接关联的证书。
type AppDomainCert struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Cert      string    `json:"-"`
	Key       string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *AppDomainCert) SecretName() string { return "eng-normal-" + c.Name }

// AppDomainSharedCert 是共享证书，AutoMatchCNs 为 ";" 分隔的通配 CN 列表。
type AppDomainSharedCert struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Cert         string    `json:"-"`
	Key          string    `json:"-"`
	AutoMatchCNs string    `json:"auto_match_cns"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *AppDomainSharedCert) SecretName() string { return "eng-shared-" + c.Name }

func (c *AppDomainSharedCert) Patterns() []string {
	var out []string
	for _, p := range strings.Split(c.AutoMatchCNs, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, strings.ToLower(p))
		}
	}
	return out
}

// Match 返回能覆盖 host 的最具体模式。"*" 只匹配单级标签。
func (c *AppDomainSharedCert) Match(host string) (string, bool) {
	host = strings.ToLower(host)
	best, found := "", false
	for _, p := range c.Patterns() {
		g, err := glob.Compile(p, '.')
		if err != nil || !g.Match(host) {
			continue
		}
		if !found || patternSpecificity(p) > patternSpecificity(best) {
			best, found = p, true
		}
	}
	return best, found
}

// patternSpecificity 精确模式优先于通配模式，其次按标签数量。
func patternSpecificity(p string) int {
	labels := strings.Count(p, ".") + 1
	if !strings.Contains(p, "*") {
		return 1000 + labels
	}
	return labels - strings.Count(p, "*")
}

// PickSharedCert 在多个共享证书都能匹配时，选模式最具体的；仍相同时按名称字典序。
func PickSharedCert(certs []*AppDomainSharedCert, host string) *AppDomainSharedCert {
	type candidate struct {
		cert  *AppDomainSharedCert
		score int
	}
	var matched []candidate
	for _, c := range certs {
		if p, ok := c.Match(host); ok {
			matched = append(matched, candidate{cert: c, score: patternSpecificity(p)})
		}
	}
	if len(matched) == 0 {
		return nil
	}
	slices.SortFunc(matched, func(a, b candidate) int {
		if a.score != b.score {
			return cmp.Compare(b.score, a.score)
		}
		return cmp.Compare(a.cert.Name, b.cert.Name)
	})
	return matched[0].cert
}

// DomainWithCert 是生成 Ingress 域名条目的输入。
type DomainWithCert struct {
	Host         string
	PathPrefix   string
	HTTPSEnabled bool
	CertID       string
	SharedCertID string
}

// IngressDomain 是 Ingress 中的一个 host 及其路径与 TLS 配置。
type IngressDomain struct {
	Host           string   `json:"host"`
	PathPrefixList []string `json:"path_prefix_list"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSSecretName  string   `json:"tls_secret_name,omitempty"`
}

// ProcessIngress 是集群中 Ingress 对象的领域表示。
type ProcessIngress struct {
	Name            string            `json:"name"`
	Namespace       string            `json:"namespace"`
	Domains         []IngressDomain   `json:"domains"`
	ServiceName     string            `json:"service_name"`
	ServicePortName string            `json:"service_port_name"`
	RewriteToRoot   bool              `json:"rewrite_to_root"`
	Annotations     map[string]string `json:"annotations,omitempty"`
	Labels          map[string]string `json:"labels,omitempty"`
}

// Hosts 按出现顺序返回 Ingress 中的全部域名。
func (i *ProcessIngress) Hosts() []string {
	hosts := make([]string, 0, len(i.Domains))
	for _, d := range i.Domains {
		hosts = append(hosts, d.Host)
	}
	return hosts
}
