package nutrition

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed distributions.yaml
var defaultTableYAML []byte

// MaxDistributionDeviation is the aggregate percentage-point distance from
// the reference split above which a generated split is discarded.
const MaxDistributionDeviation = 20.0

// Goal is the user's nutrition goal.
type Goal string

const (
	GoalLoseFat     Goal = "perder_grasa"
	GoalMaintain    Goal = "mantener"
	GoalGainMuscle  Goal = "ganar_masa"
	GoalPerformance Goal = "rendimiento"
)

// Intensity is the user's training intensity.
type Intensity string

const (
	IntensityLow      Intensity = "baja"
	IntensityModerate Intensity = "moderada"
	IntensityHigh     Intensity = "alta"
)

var goalAliases = map[string]Goal{
	"perder_grasa": GoalLoseFat,
	"lose_fat":     GoalLoseFat,
	"fat_loss":     GoalLoseFat,
	"mantener":     GoalMaintain,
	"maintain":     GoalMaintain,
	"maintenance":  GoalMaintain,
	"ganar_masa":   GoalGainMuscle,
	"gain_muscle":  GoalGainMuscle,
	"muscle_gain":  GoalGainMuscle,
	"rendimiento":  GoalPerformance,
	"performance":  GoalPerformance,
}

var intensityAliases = map[string]Intensity{
	"baja":     IntensityLow,
	"low":      IntensityLow,
	"moderada": IntensityModerate,
	"moderate": IntensityModerate,
	"media":    IntensityModerate,
	"alta":     IntensityHigh,
	"high":     IntensityHigh,
}

// ParseGoal accepts the Spanish identifiers and their English equivalents.
func ParseGoal(s string) (Goal, bool) {
	g, ok := goalAliases[enumKey(s)]
	return g, ok
}

// ParseIntensity accepts the Spanish identifiers and their English equivalents.
func ParseIntensity(s string) (Intensity, bool) {
	i, ok := intensityAliases[enumKey(s)]
	return i, ok
}

// Distribution is the percentage of daily calories per canonical meal.
type Distribution struct {
	Breakfast int `json:"breakfast" yaml:"breakfast"`
	Lunch     int `json:"lunch" yaml:"lunch"`
	Snack     int `json:"snack" yaml:"snack"`
	Dinner    int `json:"dinner" yaml:"dinner"`
}

func (d Distribution) Sum() int {
	return d.Breakfast + d.Lunch + d.Snack + d.Dinner
}

func (d Distribution) values() [4]int {
	return [4]int{d.Breakfast, d.Lunch, d.Snack, d.Dinner}
}

func distributionOf(v [4]int) Distribution {
	return Distribution{Breakfast: v[0], Lunch: v[1], Snack: v[2], Dinner: v[3]}
}

func (d Distribution) validate() error {
	for _, v := range d.values() {
		if v < 0 {
			return fmt.Errorf("negative percentage in %+v", d)
		}
	}
	if d.Sum() != 100 {
		return fmt.Errorf("percentages in %+v sum to %d, not 100", d, d.Sum())
	}
	return nil
}

// ReferenceTable maps (goal, intensity) to the reference distribution.
type ReferenceTable struct {
	fallback Distribution
	rows     map[Goal]map[Intensity]Distribution
}

type referenceFile struct {
	Default Distribution                       `yaml:"default"`
	Goals   map[string]map[string]Distribution `yaml:"goals"`
}

// ParseReferenceTable reads a YAML table in the format of the embedded
// distributions.yaml. Every row must be non-negative and sum to 100.
func ParseReferenceTable(data []byte) (*ReferenceTable, error) {
	var file referenceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse reference table: %w", err)
	}
	if err := file.Default.validate(); err != nil {
		return nil, fmt.Errorf("invalid default distribution: %w", err)
	}

	table := &ReferenceTable{
		fallback: file.Default,
		rows:     make(map[Goal]map[Intensity]Distribution, len(file.Goals)),
	}
	for goalName, row := range file.Goals {
		goal := Goal(enumKey(goalName))
		if table.rows[goal] == nil {
			table.rows[goal] = make(map[Intensity]Distribution, len(row))
		}
		for intensityName, d := range row {
			if err := d.validate(); err != nil {
				return nil, fmt.Errorf("invalid distribution for %s/%s: %w", goalName, intensityName, err)
			}
			table.rows[goal][Intensity(enumKey(intensityName))] = d
		}
	}
	return table, nil
}

// LoadReferenceTable reads a reference table from a YAML file.
func LoadReferenceTable(path string) (*ReferenceTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference table %s: %w", path, err)
	}
	return ParseReferenceTable(data)
}

var defaultTable = sync.OnceValue(func() *ReferenceTable {
	t, err := ParseReferenceTable(defaultTableYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded distributions.yaml: %v", err))
	}
	return t
})

// DefaultReferenceTable returns the table embedded in the binary.
func DefaultReferenceTable() *ReferenceTable {
	return defaultTable()
}

// Lookup returns the reference distribution for goal and intensity, or the
// balanced default when the pair is not in the table. English aliases are
// accepted for both.
func (t *ReferenceTable) Lookup(goal Goal, intensity Intensity) Distribution {
	g, ok := ParseGoal(string(goal))
	if !ok {
		g = Goal(enumKey(string(goal)))
	}
	i, ok := ParseIntensity(string(intensity))
	if !ok {
		i = Intensity(enumKey(string(intensity)))
	}
	if d, ok := t.rows[g][i]; ok {
		return d
	}
	return t.fallback
}

// ReferenceDistribution looks up the embedded table.
func ReferenceDistribution(goal Goal, intensity Intensity) Distribution {
	return DefaultReferenceTable().Lookup(goal, intensity)
}

// DistributionDecision records how the final distribution was chosen.
type DistributionDecision string

const (
	DistributionReferenceAbsent    DistributionDecision = "reference-absent"
	DistributionReferenceDeviation DistributionDecision = "reference-deviation"
	DistributionRenormalized       DistributionDecision = "renormalized"
)

// reconcileDistribution keeps a generated split that stays within
// MaxDistributionDeviation of the reference, rescaled to sum to exactly
// 100 with the rounding residual on snack. Anything further away is
// replaced by the reference.
//
// MaxDistributionDeviation is checked twice: on the parsed split and on the
// rescaled one. A split that passes the first check but is pushed past the
// threshold by rescaling, such as {7, 37, 13, 23} (deviation 20, rescaled
// {9, 46, 16, 29}) against {27, 37, 13, 23}, also gets the reference, so
// feeding a normalized plan back in leaves it unchanged.
func reconcileDistribution(parsed [4]float64, ref Distribution) (Distribution, DistributionDecision, float64) {
	var sum float64
	for _, p := range parsed {
		sum += p
	}
	deviation := distance(parsed, ref)
	if deviation > MaxDistributionDeviation || sum <= 0 {
		return ref, DistributionReferenceDeviation, deviation
	}

	var rounded [4]int
	total := 0
	for i, p := range parsed {
		rounded[i] = int(math.Round(p * 100 / sum))
		total += rounded[i]
	}

	const snack = 2
	residual := 100 - total
	if rounded[snack]+residual >= 0 {
		rounded[snack] += residual
	} else {
		largest := 0
		for i, v := range rounded {
			if v > rounded[largest] {
				largest = i
			}
		}
		rounded[largest] += residual
	}

	out := distributionOf(rounded)
	var scaled [4]float64
	for i, v := range rounded {
		scaled[i] = float64(v)
	}
	if distance(scaled, ref) > MaxDistributionDeviation {
		return ref, DistributionReferenceDeviation, deviation
	}
	return out, DistributionRenormalized, deviation
}

// distance is the aggregate percentage-point deviation from ref.
func distance(p [4]float64, ref Distribution) float64 {
	var d float64
	for i, r := range ref.values() {
		d += math.Abs(p[i] - float64(r))
	}
	return d
}

func enumKey(s string) string {
	s = fold(s)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}
