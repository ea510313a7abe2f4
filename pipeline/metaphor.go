package pipeline

import "strings"

// Metaphor maps a technical concept to an everyday picture.
type Metaphor struct {
	Concept     string `json:"concept"`
	Image       string `json:"metaphor"`
	Explanation string `json:"explanation"`
}

// String renders the metaphor as "concept -> image".
func (m Metaphor) String() string {
	return m.Concept + " -> " + m.Image
}

// MaxConcepts is the most concepts the analyze stage reports.
const MaxConcepts = 5

// DefaultLibrary is the built-in metaphor library, in match priority order.
var DefaultLibrary = []Metaphor{
	{"redis", "a corner shop", "small stock, but it is downstairs and quick to reach"},
	{"mysql", "a hypermarket", "has everything, but you queue and drive there"},
	{"database", "a hypermarket", "where every product is stored"},
	{"cache", "a corner shop", "keep what you use often within reach"},
	{"message queue", "a parcel locker", "the sender does not wait for the receiver to be home"},
	{"kafka", "a parcel locker", "a huge sorting hub with astonishing throughput"},
	{"distributed lock", "a public restroom lock", "one person at a time"},
	{"load balancing", "a bank ticket machine", "go to whichever counter is free"},
	{"index", "a book's table of contents", "find a topic without reading every page"},
	{"microservice", "a restaurant kitchen with stations", "one chops, one fries, one plates"},
	{"container", "a shipping container", "whatever is inside, the box is a standard size"},
	{"docker", "a shipping container", "a standard way to pack things"},
	{"api", "a restaurant menu", "tells you what you can order and how"},
	{"cdn", "a chain of convenience stores", "a branch in every town, pick up nearby"},
	{"dns", "directory enquiries", "tells you which number to dial"},
	{"tcp", "sending a tracked parcel", "address, pack, ship, sign for it"},
	{"http", "a phone call", "you say one thing, I answer one thing"},
	{"websocket", "a walkie-talkie", "talk at any time without hanging up"},
	{"transaction", "a bank transfer", "either both sides change or neither does"},
	{"cache penetration", "asking for a product nobody stocks", "the shop misses and sends you to the hypermarket every time"},
	{"cache avalanche", "every corner shop closing at once", "everyone floods the hypermarket"},
	{"rate limiting", "a theme park turnstile", "too many people and the gate closes"},
	{"circuit breaker", "a fuse", "too much current and it cuts out"},
	{"degradation", "a busy restaurant serving only set meals", "simplify the service when overloaded"},
	{"thread", "a worker", "the one doing the job"},
	{"process", "a factory", "a workshop running on its own"},
	{"lock", "a key", "only the holder can open the door"},
	{"deadlock", "two people blocking a corridor", "neither steps aside, neither moves"},
	{"memory", "a workbench", "where the things in use right now sit"},
	{"disk", "a warehouse", "where things are stored long term"},
	{"cpu", "a brain", "does the thinking and the arithmetic"},
	{"gpu", "an assembly line crew", "many people doing the same simple job at once"},
	{"algorithm", "a recipe", "steps to follow to get the result"},
	{"recursion", "russian dolls", "open one and there is another inside"},
	{"hash", "an ID number", "every person gets a unique code"},
	{"queue", "a queue at the till", "first come, first served"},
	{"stack", "a stack of plates", "the last one on is the first one off"},
	{"tree", "a family tree", "a structure of parents and children"},
	{"graph", "a metro map", "stations connected by lines"},
}

// ExtractConcepts returns up to MaxConcepts library concepts that appear
// in content, in library order. Matching is case-insensitive.
func ExtractConcepts(library []Metaphor, content string) []string {
	lower := strings.ToLower(content)
	concepts := []string{}
	for _, m := range library {
		if strings.Contains(lower, m.Concept) {
			concepts = append(concepts, m.Concept)
			if len(concepts) == MaxConcepts {
				break
			}
		}
	}
	return concepts
}

// FindMetaphors looks each concept up in the library.
func FindMetaphors(library []Metaphor, concepts []string) []Metaphor {
	byConcept := make(map[string]Metaphor, len(library))
	for _, m := range library {
		if _, ok := byConcept[m.Concept]; !ok {
			byConcept[m.Concept] = m
		}
	}
	var out []Metaphor
	for _, c := range concepts {
		if m, ok := byConcept[strings.ToLower(c)]; ok {
			out = append(out, m)
		}
	}
	return out
}
