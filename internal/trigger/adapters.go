package trigger

// Adapters bundles every trigger source for wiring and for the ingestion
// surface. Fields may be nil when a source is unavailable on the device;
// a missing sensor excludes its adapter, it never breaks the rest.
type Adapters struct {
	Button   *ButtonSequenceMatcher
	Shake    *ShakeDetector
	Phrase   *PhraseMatcher
	Wearable *WearableSignalReceiver
	Manual   *ManualTrigger
}

// Sources returns the toggleable adapters that are present.
func (a *Adapters) Sources() []Source {
	var out []Source
	if a.Button != nil {
		out = append(out, a.Button)
	}
	if a.Shake != nil {
		out = append(out, a.Shake)
	}
	if a.Phrase != nil {
		out = append(out, a.Phrase)
	}
	if a.Wearable != nil {
		out = append(out, a.Wearable)
	}
	return out
}

// ApplyToggles enables or disables adapters by name.
func (a *Adapters) ApplyToggles(enabled map[string]bool) {
	names := map[string]Source{}
	for _, s := range a.Sources() {
		names[s.Name()] = s
	}
	if s, ok := names["button"]; ok {
		s.SetEnabled(enabled["button"])
	}
	if s, ok := names["shake"]; ok {
		s.SetEnabled(enabled["shake"])
	}
	if s, ok := names["voice"]; ok {
		s.SetEnabled(enabled["voice"])
	}
	if s, ok := names["wearable"]; ok {
		s.SetEnabled(enabled["wearable"])
	}
}
