package enums

// ManualResolution records why an operator dismissed an SMS.
type ManualResolution string

const (
	ManualResolutionIgnore          ManualResolution = "ignore"
	ManualResolutionLinkedElsewhere ManualResolution = "linked_elsewhere"
	ManualResolutionDuplicate       ManualResolution = "duplicate"
)

var manualResolutions = newSet("manual resolution",
	ManualResolutionIgnore, ManualResolutionLinkedElsewhere, ManualResolutionDuplicate)

func (r ManualResolution) IsValid() bool { return manualResolutions.has(r) }

func ParseManualResolution(raw string) (ManualResolution, error) {
	return manualResolutions.parse(raw)
}
