package configsvc

// Clone returns a deep copy so snapshots never share mutable state with callers.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{
		Logger:        clonePrefs(a.Logger),
		Monitor:       clonePrefs(a.Monitor),
		Visualization: clonePrefs(a.Visualization),
	}
	if a.Guard != nil {
		g := a.Guard.clone()
		out.Guard = &g
	}
	if a.Context != nil {
		c := *a.Context
		c.Keywords = cloneStrings(c.Keywords)
		c.ApprovedContexts = cloneStrings(c.ApprovedContexts)
		c.File = cloneFile(c.File)
		c.Threshold = cloneFloat(c.Threshold)
		out.Context = &c
	}
	if a.RAG != nil {
		r := *a.RAG
		r.Document = cloneFile(r.Document)
		if r.QAPairs != nil {
			r.QAPairs = append([]QAPair(nil), r.QAPairs...)
		}
		out.RAG = &r
	}
	if a.Scorer != nil {
		s := *a.Scorer
		s.Metrics = cloneStrings(s.Metrics)
		s.Threshold = cloneFloat(s.Threshold)
		if s.Weights != nil {
			w := make(map[string]float64, len(s.Weights))
			for k, v := range s.Weights {
				w[k] = v
			}
			s.Weights = w
		}
		out.Scorer = &s
	}
	if a.Validator != nil {
		v := *a.Validator
		v.ValidatorParams = cloneMap(v.ValidatorParams)
		out.Validator = &v
	}
	if a.LLM != nil {
		l := *a.LLM
		if l.Temperature != nil {
			t := *l.Temperature
			l.Temperature = &t
		}
		if l.MaxTokens != nil {
			n := *l.MaxTokens
			l.MaxTokens = &n
		}
		out.LLM = &l
	}
	if a.Chat != nil {
		c := *a.Chat
		out.Chat = &c
	}
	return out
}

func (g GuardConfig) clone() GuardConfig {
	out := g
	if g.Validators != nil {
		out.Validators = make([]ValidatorBinding, len(g.Validators))
		for i, b := range g.Validators {
			b.Params = cloneMap(b.Params)
			out.Validators[i] = b
		}
	}
	out.Logger = clonePrefs(g.Logger)
	if g.Schema != nil {
		s := *g.Schema
		s.File = cloneFile(s.File)
		out.Schema = &s
	}
	return out
}

func cloneFile(f *FileRef) *FileRef {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return Float(*v)
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func clonePrefs(in Preferences) Preferences {
	if in == nil {
		return nil
	}
	return Preferences(cloneMap(in))
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneValue deep-copies JSON-like values (maps, slices, scalars).
func CloneValue(v any) any {
	return cloneValue(v)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case Preferences:
		return clonePrefs(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return cloneStrings(t)
	default:
		return v
	}
}
