package aspect

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Category places an aspect relative to others intercepting the same
// member. Values outside the predefined set are allowed.
type Category int

const (
	RunUrgent    Category = 10
	Validation   Category = 20
	Marshalling  Category = 30
	Security     Category = 40
	RunEarly     Category = 50
	Diagnostics  Category = 60
	Caching      Category = 70
	RunSoon      Category = 80
	Threading    Category = 90
	Trampoline   Category = 100
	UnitOfWork   Category = 110
	RunLate      Category = 120
	DataBinding  Category = 130
	Coordination Category = 140
	Persistence  Category = 150
	RunVeryLate  Category = 160
)

var categoryNames = map[Category]string{
	RunUrgent:    "RunUrgent",
	Validation:   "Validation",
	Marshalling:  "Marshalling",
	Security:     "Security",
	RunEarly:     "RunEarly",
	Diagnostics:  "Diagnostics",
	Caching:      "Caching",
	RunSoon:      "RunSoon",
	Threading:    "Threading",
	Trampoline:   "Trampoline",
	UnitOfWork:   "UnitOfWork",
	RunLate:      "RunLate",
	DataBinding:  "DataBinding",
	Coordination: "Coordination",
	Persistence:  "Persistence",
	RunVeryLate:  "RunVeryLate",
}

// defaultOrder lists the predefined categories from first to last.
var defaultOrder = []Category{
	RunUrgent, Validation, Marshalling, Security, RunEarly, Diagnostics,
	Caching, RunSoon, Threading, Trampoline, UnitOfWork, RunLate,
	DataBinding, Coordination, Persistence, RunVeryLate,
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "Category(" + strconv.Itoa(int(c)) + ")"
}

// ParseCategory accepts a predefined category name or a plain number.
func ParseCategory(s string) (Category, error) {
	for c, name := range categoryNames {
		if name == s {
			return c, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown aspect category %q", s)
	}
	return Category(n), nil
}

// UnknownPriority is the priority of categories an Ordering does not
// mention. They run after every known category.
const UnknownPriority = math.MaxInt32

// Ordering maps categories to priorities; lower runs first.
type Ordering map[Category]int

// DefaultOrdering returns the predefined category order.
func DefaultOrdering() Ordering {
	return OrderingOf(defaultOrder...)
}

// OrderingOf ranks categories by their position in order.
func OrderingOf(order ...Category) Ordering {
	o := make(Ordering, len(order))
	for i, c := range order {
		if _, dup := o[c]; !dup {
			o[c] = i
		}
	}
	return o
}

// OrderingFromNames ranks categories given by name or number.
func OrderingFromNames(names []string) (Ordering, error) {
	order := make([]Category, 0, len(names))
	for _, name := range names {
		c, err := ParseCategory(name)
		if err != nil {
			return nil, err
		}
		order = append(order, c)
	}
	return OrderingOf(order...), nil
}

// Priority returns the rank of c, UnknownPriority when absent.
func (o Ordering) Priority(c Category) int {
	if p, ok := o[c]; ok {
		return p
	}
	return UnknownPriority
}

// Sorted returns the categories of o from first to last.
func (o Ordering) Sorted() []Category {
	cats := make([]Category, 0, len(o))
	for c := range o {
		cats = append(cats, c)
	}
	slices.SortFunc(cats, o.compare)
	return cats
}

// compare orders by priority, then by category number.
func (o Ordering) compare(a, b Category) int {
	if c := cmp.Compare(o.Priority(a), o.Priority(b)); c != 0 {
		return c
	}
	return cmp.Compare(a, b)
}
