package mappings

// ColumnMapping describes how a result column is labelled on an axis.
type ColumnMapping struct {
	Label string
	Min   interface{}
	Max   interface{}
}

var ColumnMappings = map[string]ColumnMapping{
	"epsilon": {
		Label: "$\\epsilon$",
		Min:   0.0,
		Max:   "auto",
	},
	"adv_acc": {
		Label: "Adversarial accuracy (\\%)",
		Min:   0.0,
		Max:   100.0,
	},
	"test_acc": {
		Label: "Test accuracy (\\%)",
		Min:   0.0,
		Max:   100.0,
	},
	"softmax_rob": {
		Label: "Softmax robustness",
		Min:   0.0,
		Max:   1.0,
	},
	"n_samples": {
		Label: "Posterior samples",
		Min:   "auto",
		Max:   "auto",
	},
	"hidden_size": {
		Label: "Hidden size",
		Min:   "auto",
		Max:   "auto",
	},
	"lr": {
		Label: "Learning rate",
		Min:   "auto",
		Max:   "auto",
	},
	"epochs": {
		Label: "Epochs",
		Min:   "auto",
		Max:   "auto",
	},
	"n_inputs": {
		Label: "Training inputs",
		Min:   "auto",
		Max:   "auto",
	},
}

// GetColumnMapping falls back to the raw column name.
func GetColumnMapping(column string) ColumnMapping {
	if m, ok := ColumnMappings[column]; ok {
		return m
	}
	return ColumnMapping{Label: column, Min: "auto", Max: "auto"}
}

// Colors run from orange through dark red to black, one per series.
var Colors = []string{"orange", "red!80!black", "black", "blue!70!black", "teal", "violet", "gray"}

var LineStyles = []string{"solid", "dashed", "dotted", "dashdotted", "densely dashed"}

var Marks = []string{"*", "square*", "triangle*", "diamond*", "pentagon*", "o", "x"}

func GetColor(i int) string     { return Colors[i%len(Colors)] }
func GetLineStyle(i int) string { return LineStyles[i%len(LineStyles)] }
func GetMark(i int) string      { return Marks[i%len(Marks)] }
