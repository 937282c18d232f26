package nutrition

import (
	"regexp"
	"strconv"
	"strings"

	"nutrition-planner/internal/jsonrecover"
)

// Member-name aliases, in foldKey form and in priority order.
var (
	scheduleKeys      = []string{"weeklyschedule", "plansemanal", "menusemanal", "semana", "dias", "days", "weeklyplan", "schedule", "plan"}
	dayNameKeys       = []string{"dayname", "dia", "day", "nombredia", "diasemana", "nombre", "name"}
	mealsKeys         = []string{"meals", "comidas", "mealslots"}
	mealNameKeys      = []string{"category", "categoria", "tipo", "type", "mealtype", "comida", "meal", "nombre", "name"}
	timeKeys          = []string{"time", "hora", "horario"}
	optionsKeys       = []string{"options", "opciones", "alimentos", "platos", "foods", "items"}
	mealCaloriesKeys  = []string{"calorieestimate", "caloriasestimadas", "calorias", "calories", "kcal"}
	gramsKeys         = []string{"gramweight", "pesogramos", "gramos", "peso", "grams"}
	dailyCaloriesKeys = []string{"dailycalories", "caloriasdiarias", "caloriastotales", "calorias", "calories", "kcal"}
	macrosKeys        = []string{"macros", "macronutrientes", "macronutrients"}
	proteinKeys       = []string{"protein", "proteinas", "proteina", "proteins"}
	fatKeys           = []string{"fat", "grasas", "grasa", "fats"}
	carbsKeys         = []string{"carbs", "carbohidratos", "carbohidrato", "carbohydrates", "hidratos"}
	distributionKeys  = []string{"mealdistributionpercent", "distribucioncomidas", "distribucioncalorias", "mealdistribution", "distribucion", "distribution"}
	shoppingKeys      = []string{"shoppinglist", "listacompras", "listadecompras", "compras"}
	progressionKeys   = []string{"weeklyprogression", "progresionsemanal", "progresion"}
	motivationKeys    = []string{"motivation", "mensajemotivacional", "motivacion", "mensaje"}
)

var leadingNumber = regexp.MustCompile(`^\s*(-?\d+(?:[.,]\d+)?)`)

// Context carries the request parameters the normalizer needs.
type Context struct {
	Goal      Goal
	Intensity Intensity

	// DailyCalories is the caller's own target, used when the completion
	// omits one. Zero means none.
	DailyCalories float64
	// RequireDailyCalories turns an absent daily target (with no caller
	// target either) into ErrMissingAnchorFields instead of zero.
	RequireDailyCalories bool
}

// Report describes the repairs applied to one completion.
type Report struct {
	Strategy              jsonrecover.Strategy `json:"strategy,omitempty"`
	SynthesizedDays       []Day                `json:"synthesizedDays,omitempty"`
	DroppedDays           int                  `json:"droppedDays,omitempty"`
	PlaceholderSlots      int                  `json:"placeholderSlots"`
	ExtraMeals            int                  `json:"extraMeals"`
	Distribution          DistributionDecision `json:"distribution"`
	DistributionDeviation float64              `json:"distributionDeviation"`
}

// Normalizer turns parsed completions into canonical plans. It holds only
// the read-only reference table and is safe for concurrent use.
type Normalizer struct {
	table *ReferenceTable
}

// NewNormalizer returns a Normalizer over table, or over the embedded table
// when table is nil.
func NewNormalizer(table *ReferenceTable) *Normalizer {
	if table == nil {
		table = DefaultReferenceTable()
	}
	return &Normalizer{table: table}
}

// Normalize runs the default Normalizer.
func Normalize(v jsonrecover.Value, ctx Context) (*WeeklyNutritionPlan, error) {
	plan, _, err := NewNormalizer(nil).Normalize(v, ctx)
	return plan, err
}

// FromCompletion sanitizes, recovers and normalizes raw completion text.
// Parse failures are returned as *jsonrecover.ParseError.
func (n *Normalizer) FromCompletion(raw string, ctx Context) (*WeeklyNutritionPlan, Report, error) {
	v, strategy, err := jsonrecover.ParseWithStrategy(jsonrecover.Sanitize(raw))
	if err != nil {
		return nil, Report{Strategy: strategy}, err
	}
	plan, report, err := n.Normalize(v, ctx)
	report.Strategy = strategy
	return plan, report, err
}

// Normalize builds a WeeklyNutritionPlan from v. Missing days, slots,
// times and options are repaired; only a missing schedule or an unusable
// daily calorie target is an error.
func (n *Normalizer) Normalize(v jsonrecover.Value, ctx Context) (*WeeklyNutritionPlan, Report, error) {
	var report Report

	root, days := locateSchedule(v)
	if !hasMeal(days) {
		return nil, report, &NormalizationError{Reason: ReasonMissingSchedule}
	}

	plan := &WeeklyNutritionPlan{}

	calories, err := dailyCalories(root, ctx)
	if err != nil {
		return nil, report, err
	}
	plan.DailyCalories = calories
	plan.Macros = macros(root)
	plan.WeeklySchedule = completeWeek(days, &report)

	ref := n.table.Lookup(ctx.Goal, ctx.Intensity)
	if parsed, ok := distribution(root); ok {
		plan.MealDistributionPercent, report.Distribution, report.DistributionDeviation = reconcileDistribution(parsed, ref)
	} else {
		plan.MealDistributionPercent, report.Distribution = ref, DistributionReferenceAbsent
	}

	plan.ShoppingList = passThrough(root, shoppingKeys)
	plan.WeeklyProgression = passThrough(root, progressionKeys)
	plan.Motivation = passThrough(root, motivationKeys)

	return plan, report, nil
}

type rawMeal struct {
	name     string
	time     string
	options  []string
	calories *float64
	grams    *float64
}

type rawDay struct {
	name  string
	meals []rawMeal
}

func hasMeal(days []rawDay) bool {
	for _, d := range days {
		if len(d.meals) > 0 {
			return true
		}
	}
	return false
}

// locateSchedule finds the schedule in v and returns the object holding it
// together with its days. A root that wraps the plan in a single object
// member ({"plan": {...}}) is unwrapped once.
func locateSchedule(v jsonrecover.Value) (fields, []rawDay) {
	if v.Kind() == jsonrecover.Array {
		return fields{}, collectDays(v)
	}
	root := newFields(v)
	if days := findDays(root); len(days) > 0 {
		return root, days
	}
	for _, m := range root.members {
		if m.Value.Kind() != jsonrecover.Object {
			continue
		}
		inner := newFields(m.Value)
		if days := findDays(inner); len(days) > 0 {
			return inner, days
		}
	}
	return root, nil
}

func findDays(root fields) []rawDay {
	for _, alias := range scheduleKeys {
		if v, ok := root.field(alias); ok {
			if days := collectDays(v); len(days) > 0 {
				return days
			}
		}
	}
	// No known name: take the first member that reads as a list of days.
	for _, m := range root.members {
		if m.Value.Kind() != jsonrecover.Array {
			continue
		}
		if days := collectDays(m.Value); hasMeal(days) {
			return days
		}
	}
	if days := collectDays(root.value); hasMeal(days) {
		return days
	}
	return nil
}

// collectDays reads an array of day entries, or an object keyed by day name.
func collectDays(v jsonrecover.Value) []rawDay {
	var days []rawDay
	switch v.Kind() {
	case jsonrecover.Array:
		for _, item := range v.Items() {
			switch item.Kind() {
			case jsonrecover.Object:
				days = append(days, dayFromObject(newFields(item), ""))
			case jsonrecover.Array:
				days = append(days, rawDay{meals: mealsFromArray(item)})
			}
		}
	case jsonrecover.Object:
		for _, m := range v.Members() {
			if _, ok := CanonicalDay(m.Key); !ok {
				continue
			}
			switch m.Value.Kind() {
			case jsonrecover.Object:
				days = append(days, dayFromObject(newFields(m.Value), m.Key))
			case jsonrecover.Array:
				days = append(days, rawDay{name: m.Key, meals: mealsFromArray(m.Value)})
			}
		}
	}
	return days
}

func dayFromObject(f fields, fallbackName string) rawDay {
	day := rawDay{name: fallbackName}
	if day.name == "" {
		day.name = f.text(dayNameKeys...)
	}

	if meals, ok := f.field(mealsKeys...); ok {
		switch meals.Kind() {
		case jsonrecover.Array:
			day.meals = mealsFromArray(meals)
		case jsonrecover.Object:
			day.meals = mealsFromObject(meals.Members())
		}
		return day
	}

	// Meals written directly on the day: {"dia": "Lunes", "desayuno": {...}}.
	var keyed []jsonrecover.Member
	for _, m := range f.members {
		if _, ok := CanonicalMeal(m.Key); ok {
			keyed = append(keyed, m)
		}
	}
	day.meals = mealsFromObject(keyed)
	return day
}

func mealsFromArray(v jsonrecover.Value) []rawMeal {
	var meals []rawMeal
	for _, item := range v.Items() {
		switch item.Kind() {
		case jsonrecover.Object:
			meals = append(meals, mealFromObject(newFields(item), ""))
		case jsonrecover.String:
			if s, _ := item.Text(); strings.TrimSpace(s) != "" {
				meals = append(meals, rawMeal{name: s, options: []string{s}})
			}
		}
	}
	return meals
}

// mealsFromObject reads meals keyed by name: {"desayuno": {...}},
// {"cena": ["Sopa", "Pescado"]} or {"snack": "Fruta"}.
func mealsFromObject(members []jsonrecover.Member) []rawMeal {
	var meals []rawMeal
	for _, m := range members {
		switch m.Value.Kind() {
		case jsonrecover.Object:
			meals = append(meals, mealFromObject(newFields(m.Value), m.Key))
		case jsonrecover.Array, jsonrecover.String:
			meals = append(meals, rawMeal{name: m.Key, options: optionList(m.Value)})
		}
	}
	return meals
}

func mealFromObject(f fields, key string) rawMeal {
	meal := rawMeal{name: mealName(f, key), time: f.text(timeKeys...)}
	if opts, ok := f.field(optionsKeys...); ok {
		meal.options = optionList(opts)
	}
	if v, ok := f.field(mealCaloriesKeys...); ok {
		if n, ok := numeric(v); ok {
			meal.calories = &n
		}
	}
	if v, ok := f.field(gramsKeys...); ok {
		if n, ok := numeric(v); ok {
			meal.grams = &n
		}
	}
	return meal
}

// mealName prefers a name that canonicalizes, so {"tipo": "cena",
// "nombre": "Sopa"} is a Dinner. The member key of a keyed meal wins when
// it canonicalizes itself.
func mealName(f fields, key string) string {
	if _, ok := CanonicalMeal(key); ok {
		return key
	}
	first := key
	for _, alias := range mealNameKeys {
		name := f.text(alias)
		if name == "" {
			continue
		}
		if _, ok := CanonicalMeal(name); ok {
			return name
		}
		if first == "" {
			first = name
		}
	}
	if first == "" {
		return ExtraMealName
	}
	return first
}

func optionList(v jsonrecover.Value) []string {
	var out []string
	add := func(item jsonrecover.Value) {
		var s string
		switch item.Kind() {
		case jsonrecover.Null:
			return
		case jsonrecover.String:
			s, _ = item.Text()
		case jsonrecover.Number:
			s = item.Literal()
		default:
			s = item.String()
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if v.Kind() == jsonrecover.Array {
		for _, item := range v.Items() {
			add(item)
		}
	} else {
		add(v)
	}
	return out
}

// completeWeek places parsed days on the canonical week and synthesizes the
// missing ones. Unrecognized and repeated day names take the first free
// days in week order; days beyond seven are dropped.
func completeWeek(days []rawDay, report *Report) []DayPlan {
	var placed [len(Week)]*DayPlan
	var pending []rawDay

	index := func(d Day) int {
		for i, w := range Week {
			if w == d {
				return i
			}
		}
		return -1
	}

	for _, d := range days {
		if day, ok := CanonicalDay(d.name); ok {
			if i := index(day); placed[i] == nil {
				dp := buildDay(day, d.meals, report)
				placed[i] = &dp
				continue
			}
		}
		// An unplaced entry without meals, such as the empty object a cut
		// inside a day leaves behind, does not occupy a weekday.
		if len(d.meals) == 0 {
			continue
		}
		pending = append(pending, d)
	}
	for _, d := range pending {
		free := -1
		for i := range placed {
			if placed[i] == nil {
				free = i
				break
			}
		}
		if free < 0 {
			report.DroppedDays++
			continue
		}
		dp := buildDay(Week[free], d.meals, report)
		placed[free] = &dp
	}

	var present []int
	for i := range placed {
		if placed[i] != nil {
			present = append(present, i)
		}
	}

	schedule := make([]DayPlan, len(Week))
	next := 0
	for i, day := range Week {
		if placed[i] != nil {
			schedule[i] = *placed[i]
			continue
		}
		source := placed[present[next%len(present)]]
		next++
		schedule[i] = source.rotated(day)
		report.SynthesizedDays = append(report.SynthesizedDays, day)
	}
	return schedule
}

// buildDay emits the four canonical slots in order, synthesizing any that
// are missing, followed by the extra meals.
func buildDay(day Day, meals []rawMeal, report *Report) DayPlan {
	var slots [len(MealCategories)]*MealSlot
	var extras []MealSlot

	for _, m := range meals {
		slot := MealSlot{
			Time:            strings.TrimSpace(m.time),
			Category:        MealCategory(strings.TrimSpace(m.name)),
			Options:         m.options,
			CalorieEstimate: m.calories,
			GramWeight:      m.grams,
		}
		if len(slot.Options) == 0 {
			slot.Options = []string{PlaceholderOption}
		}
		if slot.Category == "" {
			slot.Category = ExtraMealName
		}

		c, ok := CanonicalMeal(m.name)
		if !ok {
			extras = append(extras, slot)
			report.ExtraMeals++
			continue
		}
		if slot.Time == "" {
			slot.Time = DefaultTime(c)
		}
		if i := categoryIndex(c); slots[i] == nil {
			slot.Category = c
			slots[i] = &slot
			continue
		}
		// A second Breakfast keeps its own name and goes with the extras.
		extras = append(extras, slot)
		report.ExtraMeals++
	}

	dp := DayPlan{DayName: day, Meals: make([]MealSlot, 0, len(MealCategories)+len(extras))}
	for i, c := range MealCategories {
		if slots[i] != nil {
			dp.Meals = append(dp.Meals, *slots[i])
			continue
		}
		dp.Meals = append(dp.Meals, placeholderSlot(c))
		report.PlaceholderSlots++
	}
	dp.Meals = append(dp.Meals, extras...)
	return dp
}

func placeholderSlot(c MealCategory) MealSlot {
	var kcal, grams float64
	return MealSlot{
		Time:            DefaultTime(c),
		Category:        c,
		Options:         []string{PlaceholderOption},
		CalorieEstimate: &kcal,
		GramWeight:      &grams,
	}
}

func categoryIndex(c MealCategory) int {
	for i, mc := range MealCategories {
		if mc == c {
			return i
		}
	}
	return -1
}

func dailyCalories(root fields, ctx Context) (float64, error) {
	if v, ok := root.field(dailyCaloriesKeys...); ok {
		n, ok := numeric(v)
		if !ok {
			return 0, &NormalizationError{Reason: ReasonMissingAnchorFields, Field: "dailyCalories"}
		}
		return n, nil
	}
	if ctx.DailyCalories > 0 {
		return ctx.DailyCalories, nil
	}
	if ctx.RequireDailyCalories {
		return 0, &NormalizationError{Reason: ReasonMissingAnchorFields, Field: "dailyCalories"}
	}
	return 0, nil
}

func macros(root fields) Macros {
	src := root
	if v, ok := root.field(macrosKeys...); ok && v.Kind() == jsonrecover.Object {
		src = newFields(v)
	}
	return Macros{
		Protein: src.text(proteinKeys...),
		Fat:     src.text(fatKeys...),
		Carbs:   src.text(carbsKeys...),
	}
}

// distribution reads the generated split. Components sharing a category
// ("snack" and "merienda") are added up; negatives count as zero.
func distribution(root fields) ([4]float64, bool) {
	var parsed [4]float64
	v, ok := root.field(distributionKeys...)
	if !ok || v.Kind() != jsonrecover.Object {
		return parsed, false
	}
	found := false
	for _, m := range v.Members() {
		c, ok := CanonicalMeal(m.Key)
		if !ok {
			continue
		}
		n, ok := numeric(m.Value)
		if !ok {
			continue
		}
		if n < 0 {
			n = 0
		}
		parsed[categoryIndex(c)] += n
		found = true
	}
	return parsed, found
}

func passThrough(root fields, aliases []string) *jsonrecover.Value {
	v, ok := root.field(aliases...)
	if !ok || v.IsNull() {
		return nil
	}
	c := v.Clone()
	return &c
}

// numeric accepts JSON numbers and strings that start with one ("2000 kcal",
// "25%", "350,5").
func numeric(v jsonrecover.Value) (float64, bool) {
	if f, ok := v.Float(); ok {
		return f, true
	}
	s, ok := v.Text()
	if !ok {
		return 0, false
	}
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// fields is an object Value with its member names folded for alias lookup.
type fields struct {
	value   jsonrecover.Value
	members []jsonrecover.Member
	keys    []string
}

func newFields(v jsonrecover.Value) fields {
	f := fields{value: v, members: v.Members()}
	f.keys = make([]string, len(f.members))
	for i, m := range f.members {
		f.keys[i] = foldKey(m.Key)
	}
	return f
}

// field returns the member matching the earliest alias.
func (f fields) field(aliases ...string) (jsonrecover.Value, bool) {
	for _, alias := range aliases {
		for i, k := range f.keys {
			if k == alias {
				return f.members[i].Value, true
			}
		}
	}
	return jsonrecover.Value{}, false
}

// text returns the first alias whose value is a non-empty string or number.
func (f fields) text(aliases ...string) string {
	for _, alias := range aliases {
		v, ok := f.field(alias)
		if !ok {
			continue
		}
		switch v.Kind() {
		case jsonrecover.String:
			if s, _ := v.Text(); strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		case jsonrecover.Number:
			return v.Literal()
		}
	}
	return ""
}
