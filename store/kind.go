package store

// Kind identifies the pipeline stage that produces an artifact.
type Kind string

// Stage kinds, in pipeline order.
const (
	KindAnalysis     Kind = "analysis"
	KindArchitecture Kind = "architecture"
	KindFeaturePlan  Kind = "features"
	KindBRD          Kind = "brd"
	KindSRS          Kind = "srs"
	KindValidation   Kind = "validation"
	KindFinalReport  Kind = "final"
)

// AllKinds lists every stage kind in pipeline order.
var AllKinds = []Kind{
	KindAnalysis,
	KindArchitecture,
	KindFeaturePlan,
	KindBRD,
	KindSRS,
	KindValidation,
	KindFinalReport,
}

// stateDirs maps each kind to its numbered state directory.
var stateDirs = map[Kind]string{
	KindAnalysis:     "state_1_analysis",
	KindArchitecture: "state_2_architecture",
	KindFeaturePlan:  "state_3_features",
	KindBRD:          "state_4_documents",
	KindSRS:          "state_4_documents",
	KindValidation:   "state_5_validation",
	KindFinalReport:  "state_6_final",
}

// extensions maps kinds to their on-disk file extension.
var extensions = map[Kind]string{
	KindValidation: ".yaml",
}

// Valid reports whether k is a known stage kind.
func (k Kind) Valid() bool {
	_, ok := stateDirs[k]
	return ok
}

// StateDir returns the state directory name for the kind.
func (k Kind) StateDir() string {
	if dir, ok := stateDirs[k]; ok {
		return dir
	}
	return "state_0_unknown"
}

// Extension returns the file extension for artifacts of this kind.
func (k Kind) Extension() string {
	if ext, ok := extensions[k]; ok {
		return ext
	}
	return ".md"
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a string to a Kind, reporting whether it is known.
func ParseKind(s string) (Kind, bool) {
	k := Kind(s)
	return k, k.Valid()
}
