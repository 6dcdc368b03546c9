package catalog

// MedicineRecord is one entry of the reference catalog. Records are loaded
// once at startup and never mutated; the engine only reads them.
type MedicineRecord struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	GenericName string            `json:"generic_name"`
	DosageForm  string            `json:"dosage_form"`
	MainUse     string            `json:"main_use"`
	Warnings    string            `json:"warnings"`
	Attributes  map[string]string `json:"attributes"`
}

// Value returns the record's value for a distinguishing attribute.
// The dosage form doubles as an askable attribute even though it is a
// top-level field.
func (r MedicineRecord) Value(attribute string) (string, bool) {
	if v, ok := r.Attributes[attribute]; ok && v != "" {
		return v, true
	}
	if attribute == "dosage_form" && r.DosageForm != "" {
		return r.DosageForm, true
	}
	return "", false
}

// AttributeSpec declares one distinguishing attribute: its name and the
// deterministic phrasing used when no LLM provider is available.
type AttributeSpec struct {
	Name     string
	Template string
}

// specs is the fixed declared attribute order. The scorer breaks gain ties
// on this order, which keeps sessions reproducible.
var specs = []AttributeSpec{
	{Name: "dosage_form", Template: "What form is the medicine - tablet, capsule, syrup, or something else?"},
	{Name: "category", Template: "What is this medicine generally used for?"},
	{Name: "box_primary_color", Template: "What is the main color of the medicine box or packaging?"},
	{Name: "tablet_shape", Template: "What shape is the pill or tablet?"},
	{Name: "tablet_color", Template: "What color is the pill or tablet itself?"},
	{Name: "has_logo", Template: "Does the box have a visible brand or company logo?"},
	{Name: "is_scored", Template: "Does the tablet have a score line for splitting it?"},
	{Name: "requires_prescription", Template: "Does this medicine require a prescription?"},
	{Name: "strip_color", Template: "What color is the blister strip that holds the pills?"},
	{Name: "manufacturer", Template: "Which pharmaceutical company makes this medicine?"},
}

// Specs returns the declared attribute order.
func Specs() []AttributeSpec {
	out := make([]AttributeSpec, len(specs))
	copy(out, specs)
	return out
}

// SpecByName looks up a declared attribute.
func SpecByName(name string) (AttributeSpec, bool) {
	for _, s := range specs {
		if s.Name == name {
			return s, true
		}
	}
	return AttributeSpec{}, false
}

func cloneRecord(r MedicineRecord) MedicineRecord {
	out := r
	if r.Attributes != nil {
		out.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
