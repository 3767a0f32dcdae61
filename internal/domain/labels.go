package domain

// 引擎写入集群对象的标签与注解。
const (
	LabelEngineApp   = "bkapp.paas.bk.tencent.com/engine-app"
	LabelIngressKind = "bkapp.paas.bk.tencent.com/ingress-kind"

	AnnotationDeployID      = "bkapp.paas.bk.tencent.com/deploy-id"
	AnnotationRewriteToRoot = "bkapp.paas.bk.tencent.com/rewrite-to-root"
	AnnotationIngressClass  = "kubernetes.io/ingress.class"
)

// IngressKind 区分同一引擎应用下的不同 Ingress。
type IngressKind string

const (
	IngressKindSubdomain    IngressKind = "subdomain"
	IngressKindCustomDomain IngressKind = "custom-domain"
)
