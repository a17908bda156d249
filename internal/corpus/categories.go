package corpus

import "fmt"

// CategorySet holds distinct category labels in first-occurrence order. A
// category's integer label is its position in the set.
type CategorySet struct {
	names []string
	index map[string]int
}

func NewCategorySet() *CategorySet {
	return &CategorySet{index: make(map[string]int)}
}

// CategorySetFrom restores a set from persisted names, keeping their order.
func CategorySetFrom(names []string) (*CategorySet, error) {
	c := NewCategorySet()
	for _, name := range names {
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("category %q appears more than once", name)
		}
		c.Add(name)
	}
	return c, nil
}

// Add inserts name if it is new and returns its label.
func (c *CategorySet) Add(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}
	c.index[name] = len(c.names)
	c.names = append(c.names, name)
	return len(c.names) - 1
}

// Index returns the label of name.
func (c *CategorySet) Index(name string) (int, bool) {
	i, ok := c.index[name]
	return i, ok
}

// Name returns the category with label i.
func (c *CategorySet) Name(i int) (string, bool) {
	if i < 0 || i >= len(c.names) {
		return "", false
	}
	return c.names[i], true
}

// Names returns a copy of the categories in label order.
func (c *CategorySet) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *CategorySet) Len() int { return len(c.names) }

// Observe implements Subscriber.
func (c *CategorySet) Observe(rec Record, _ int) error {
	c.Add(rec.Category)
	return nil
}
