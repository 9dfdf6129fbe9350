// Package extract proposes memory events from generated narrative text.
//
// It is a best-effort pattern matcher, not a parser: every proposal carries a
// confidence and is meant to be reviewed or filtered before it is recorded
// like any other external input.
package extract

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/humbrol2/humbbot-memory/internal/model"
)

// Known lists names the caller already tracks. Matches against them raise
// confidence and disambiguate locations from characters.
type Known struct {
	Characters []string `json:"characters,omitempty" yaml:"characters"`
	Locations  []string `json:"locations,omitempty" yaml:"locations"`
}

// Candidate is a proposed event.
type Candidate struct {
	Type       model.EventType `json:"type"`
	Payload    model.Payload   `json:"-"`
	Confidence float64         `json:"confidence"`
	// Evidence is the text the proposal was derived from.
	Evidence  string `json:"evidence"`
	Paragraph int    `json:"paragraph"`
	Line      int    `json:"line"`

	offset int
}

// MarshalJSON includes the payload next to the candidate fields.
func (c Candidate) MarshalJSON() ([]byte, error) {
	type alias Candidate
	payload, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Payload json.RawMessage `json:"payload"`
	}{alias(c), payload})
}

const (
	knownBoost    = 0.2
	maxConfidence = 0.9
)

const namePat = `[A-Z][\w'’-]*(?:\s+(?:of\s+(?:the\s+)?)?[A-Z][\w'’-]*){0,3}`

const speechVerbs = `said|says|asked|asks|shouted|shouts|whispered|whispers|replied|replies|called|calls|muttered|mutters|cried|cries|yelled|yells|exclaimed|exclaims|answered|answers|growled|growls|snapped|snaps`

var (
	quoteThenSpeaker = regexp.MustCompile(`["“]([^"“”]{2,}?)["”]\s*,?\s*(?:(?:` + speechVerbs + `)\s+(` + namePat + `)|(` + namePat + `)\s+(?:` + speechVerbs + `))`)
	speakerThenQuote = regexp.MustCompile(`(` + namePat + `)\s+(?:` + speechVerbs + `)(?:\s+to\s+(` + namePat + `))?\s*[,:]?\s*["“]([^"“”]{2,}?)["”]`)

	travelRe = regexp.MustCompile(`\b(?:arrived|arrives|arrive|reached|reaches|entered|enters|traveled|travelled|travels|headed|heads|set out|sets out|returned|returns|rode|rides|walked|walks|journeyed|journeys|sailed|sails)\s+(?:back\s+)?(?:from\s+(?:the\s+)?` + namePat + `\s+)?(?:at|in|to|into|for|toward|towards)?\s*(?:the\s+)?(` + namePat + `)`)
	fromRe   = regexp.MustCompile(`\b(?:from|leaving|left)\s+(?:the\s+)?(` + namePat + `)`)

	discoveryRe = regexp.MustCompile(`\b(?:discovered|discovers|uncovered|uncovers|stumbled upon|stumbles upon|came upon|comes upon|found|finds)\s+(?:a|an|the)?\s*(?:(?:hidden|secret|ancient|forgotten|ruined|lost|abandoned)\s+)*(` + namePat + `)`)

	combatRe    = regexp.MustCompile(`(?i)\b(?:attack(?:s|ed)?|fight(?:s)?|fought|strike(?:s)?|struck|slash(?:es|ed)?|stab(?:s|bed)?|battle(?:s|d)?|ambush(?:es|ed)?|duel(?:s|ed|led)?|kill(?:s|ed)?|slay(?:s)?|slew|slain|clash(?:es|ed)?|charge[sd]?)\b`)
	outcomeRe   = regexp.MustCompile(`(?i)\b(defeated|won|victorious|fled|retreated|routed|surrendered|triumphed|escaped)\b`)
	casualtyRe  = regexp.MustCompile(`(` + namePat + `)\s+(?:died|dies|fell dead|falls dead|was slain|is slain|was killed|is killed|perished|perishes)`)
	slainByRe   = regexp.MustCompile(`\b(?:killed|kills|slew|slays|slain)\s+(?:the\s+)?(` + namePat + `)`)
	questRe     = regexp.MustCompile(`(?i)\b(?:quest|mission|task|bounty)\b`)
	questNameRe = regexp.MustCompile(`(?i)\b(?:quest|mission|task|bounty)\s+(?:called\s+|named\s+)?(?:["“]([^"“”]+)["”]|to\s+([^.,;!?]+)|of\s+(?:the\s+)?([^.,;!?]+))`)

	questCompleted = regexp.MustCompile(`(?i)\b(?:completed|complete|finished|fulfilled|accomplished)\b`)
	questFailed    = regexp.MustCompile(`(?i)\b(?:failed|abandoned)\b`)
	questStarted   = regexp.MustCompile(`(?i)\b(?:accepted|accepts|began|begins|started|starts|took on|takes on|undertook|undertakes)\b`)

	itemRe = regexp.MustCompile(`\b(?:picked up|picks up|obtained|obtains|acquired|acquires|received|receives|looted|loots|took|takes|gained|gains|found|finds|bought|buys|purchased|purchases|was given|is given)\s+(a|an|the|some|\d+|two|three|four|five)\s+((?:[a-z][\w'-]*\s+){0,3}[a-z][\w'-]*)`)

	nameRe = regexp.MustCompile(namePat)
)

// Words that are capitalized for grammar rather than because they name
// someone or something.
var commonWords = map[string]bool{
	"A": true, "An": true, "The": true, "He": true, "She": true, "They": true,
	"It": true, "I": true, "We": true, "You": true, "His": true, "Her": true,
	"Their": true, "Its": true, "Our": true, "My": true, "Your": true,
	"Then": true, "When": true, "As": true, "After": true, "Before": true,
	"But": true, "And": true, "Or": true, "So": true, "With": true, "At": true,
	"In": true, "On": true, "Into": true, "From": true, "To": true, "There": true,
	"This": true, "That": true, "These": true, "Those": true, "Suddenly": true,
	"Finally": true, "Meanwhile": true, "Later": true, "Now": true, "Soon": true,
	"Yes": true, "No": true, "Together": true, "Everyone": true, "Nobody": true,
	"Someone": true, "Quest": true, "Mission": true, "Beyond": true,
	"Behind": true, "Inside": true, "Outside": true, "Above": true,
	"Below": true, "Once": true, "Still": true, "Yet": true, "If": true,
	"While": true, "Although": true, "Though": true, "Where": true,
	"What": true, "Who": true, "Why": true, "How": true, "Here": true,
	"Every": true, "Each": true, "Some": true, "Many": true, "Few": true,
	"Without": true, "Despite": true, "Through": true, "Across": true,
	"Along": true, "Around": true, "Near": true, "Under": true, "Over": true,
	"Upon": true, "Against": true, "Within": true, "Not": true,
}

var itemStops = map[string]bool{
	"from": true, "and": true, "with": true, "in": true, "on": true, "at": true,
	"to": true, "that": true, "which": true, "while": true, "before": true,
	"after": true, "as": true, "into": true, "for": true, "near": true,
}

var rarities = []string{"legendary", "epic", "rare", "uncommon"}

var numberWords = map[string]int{"two": 2, "three": 3, "four": 4, "five": 5}

// Propose scans narrative and returns candidate events in the order they
// appear. Unknown narrative yields no candidates, never an error. Invalid
// UTF-8 is replaced before scanning.
func Propose(narrative string, known Known) []Candidate {
	narrative = strings.ToValidUTF8(narrative, "\uFFFD")
	x := &extractor{
		chars: lowerSet(known.Characters),
		locs:  lowerSet(known.Locations),
		seen:  map[string]bool{},
	}
	for i, p := range Paragraphs(narrative, 0) {
		x.paragraph(i, p)
	}
	sort.SliceStable(x.out, func(i, j int) bool {
		if x.out[i].Paragraph != x.out[j].Paragraph {
			return x.out[i].Paragraph < x.out[j].Paragraph
		}
		return x.out[i].offset < x.out[j].offset
	})
	return x.out
}

type extractor struct {
	chars map[string]bool
	locs  map[string]bool
	// scene is the most recent place the narrative moved to.
	scene string
	seen  map[string]bool
	out   []Candidate
}

func (x *extractor) add(c Candidate) {
	c.Type = c.Payload.EventType()
	c.Confidence = math.Min(c.Confidence, maxConfidence)
	key := string(c.Type) + "\x00" + model.Describe(c.Payload)
	if x.seen[key] {
		return
	}
	x.seen[key] = true
	x.out = append(x.out, c)
}

func (x *extractor) paragraph(idx int, p Paragraph) {
	text := strings.Join(strings.Fields(p.Text), " ")
	base := Candidate{Paragraph: idx, Line: p.StartLine}
	location := x.locationIn(text)

	x.travel(base, text)
	x.discovery(base, text)
	if location == "" {
		location = x.scene
	}
	x.dialogue(base, text, location)
	x.combat(base, text, location)
	x.quest(base, text, location)
	x.items(base, text)
}

func (x *extractor) travel(base Candidate, text string) {
	for _, s := range sentenceSpans(text) {
		m := travelRe.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		to := trimName(s.text[m[2]:m[3]])
		if to == "" || x.chars[strings.ToLower(to)] {
			continue
		}
		t := model.Travel{To: to, Participants: x.mentions(s.text, to)}
		if fm := fromRe.FindStringSubmatch(s.text); fm != nil {
			if from := trimName(fm[1]); from != "" && !strings.EqualFold(from, to) {
				t.From = from
				t.Participants = x.mentions(s.text, to, from)
			}
		}
		conf := 0.5
		if x.locs[strings.ToLower(to)] {
			conf += knownBoost
		}
		c := base
		c.Payload, c.Confidence, c.Evidence, c.offset = t, conf, s.text, s.start+m[0]
		x.add(c)
		x.scene = to
	}
}

func (x *extractor) discovery(base Candidate, text string) {
	for _, s := range sentenceSpans(text) {
		m := discoveryRe.FindStringSubmatchIndex(s.text)
		if m == nil {
			continue
		}
		place := trimName(s.text[m[2]:m[3]])
		if place == "" || x.chars[strings.ToLower(place)] {
			continue
		}
		// A place the caller already tracks is rarely a discovery.
		conf := 0.5
		if x.locs[strings.ToLower(place)] {
			conf = 0.3
		}
		c := base
		c.Payload = model.LocationDiscovery{
			Location:     place,
			Description:  s.text,
			Participants: x.mentions(s.text, place),
		}
		c.Confidence, c.Evidence, c.offset = conf, s.text, s.start+m[0]
		x.add(c)
		x.scene = place
	}
}

func (x *extractor) dialogue(base Candidate, text, location string) {
	emit := func(speaker, listener, content string, at int, evidence string) {
		speaker = trimName(speaker)
		if speaker == "" {
			return
		}
		d := model.Dialogue{Speaker: speaker, Location: location, Content: strings.TrimRight(strings.TrimSpace(content), ",")}
		if l := trimName(listener); l != "" {
			d.Listeners = []string{l}
		}
		conf := 0.6
		if x.chars[strings.ToLower(speaker)] {
			conf += knownBoost
		}
		c := base
		c.Payload, c.Confidence, c.Evidence, c.offset = d, conf, evidence, at
		x.add(c)
	}
	for _, m := range quoteThenSpeaker.FindAllStringSubmatchIndex(text, -1) {
		speaker := group(text, m, 2)
		if speaker == "" {
			speaker = group(text, m, 3)
		}
		emit(speaker, "", group(text, m, 1), m[0], text[m[0]:m[1]])
	}
	for _, m := range speakerThenQuote.FindAllStringSubmatchIndex(text, -1) {
		emit(group(text, m, 1), group(text, m, 2), group(text, m, 3), m[0], text[m[0]:m[1]])
	}
}

func (x *extractor) combat(base Candidate, text, location string) {
	var evidence []string
	var participants []string
	first := -1
	for _, s := range sentenceSpans(text) {
		loc := combatRe.FindStringIndex(s.text)
		if loc == nil {
			continue
		}
		names := x.mentions(stripQuotes(s.text), location)
		if len(names) == 0 {
			continue
		}
		if first < 0 {
			first = s.start + loc[0]
		}
		evidence = append(evidence, s.text)
		participants = appendUnique(participants, names...)
	}
	if first < 0 {
		return
	}

	joined := strings.Join(evidence, " ")
	cb := model.Combat{Participants: participants, Location: location}
	if m := outcomeRe.FindString(joined); m != "" {
		cb.Outcome = strings.ToLower(m)
	}
	var casualties []string
	for _, m := range casualtyRe.FindAllStringSubmatch(text, -1) {
		casualties = appendUnique(casualties, trimName(m[1]))
	}
	for _, m := range slainByRe.FindAllStringSubmatch(text, -1) {
		casualties = appendUnique(casualties, trimName(m[1]))
	}
	cb.Casualties = filterEmpty(casualties)

	conf := 0.4
	for _, p := range participants {
		if x.chars[strings.ToLower(p)] {
			conf += 0.1
		}
	}
	c := base
	c.Payload, c.Confidence, c.Evidence, c.offset = cb, conf, joined, first
	x.add(c)

	for _, who := range cb.Casualties {
		if !x.chars[strings.ToLower(who)] {
			continue
		}
		d := base
		d.Payload = model.CharacterDevelopment{Character: who, Change: model.ChangeDeath, Location: location}
		d.Confidence, d.Evidence, d.offset = 0.6, joined, first+1
		x.add(d)
	}
}

func (x *extractor) quest(base Candidate, text, location string) {
	for _, s := range sentenceSpans(text) {
		loc := questRe.FindStringIndex(s.text)
		if loc == nil {
			continue
		}
		var status string
		switch {
		case questCompleted.MatchString(s.text):
			status = model.QuestCompleted
		case questFailed.MatchString(s.text):
			status = model.QuestFailed
		case questStarted.MatchString(s.text):
			status = model.QuestStarted
		default:
			continue
		}
		q := model.Quest{Status: status, Location: location, Participants: x.mentions(stripQuotes(s.text), location)}
		if m := questNameRe.FindStringSubmatch(s.text); m != nil {
			for _, g := range m[1:] {
				if g = strings.TrimSpace(g); g != "" {
					q.Title = g
					break
				}
			}
		}
		conf := 0.55
		if q.Title != "" {
			conf += 0.1
		}
		c := base
		c.Payload, c.Confidence, c.Evidence, c.offset = q, conf, s.text, s.start+loc[0]
		x.add(c)
	}
}

func (x *extractor) items(base Candidate, text string) {
	for _, s := range sentenceSpans(text) {
		for _, m := range itemRe.FindAllStringSubmatchIndex(s.text, -1) {
			item := cutItem(group(s.text, m, 2))
			if item == "" {
				continue
			}
			ic := model.ItemChange{Change: "acquired", Quantity: quantity(group(s.text, m, 1))}
			ic.Item, ic.Rarity = splitRarity(item)
			if ic.Item == "" {
				continue
			}
			if owners := x.mentions(s.text[:m[0]]); len(owners) > 0 {
				ic.Owner = owners[len(owners)-1]
			}
			conf := 0.45
			if x.chars[strings.ToLower(ic.Owner)] {
				conf += knownBoost
			}
			c := base
			c.Payload, c.Confidence, c.Evidence, c.offset = ic, conf, s.text, s.start+m[0]
			x.add(c)
		}
	}
}

// mentions returns the names in text that look like characters: known
// characters, and capitalized words that are neither grammar nor known or
// excluded places.
func (x *extractor) mentions(text string, exclude ...string) []string {
	skip := map[string]bool{}
	for _, e := range exclude {
		skip[strings.ToLower(e)] = true
	}
	var out []string
	for _, raw := range nameRe.FindAllString(text, -1) {
		name := trimName(raw)
		key := strings.ToLower(name)
		if name == "" || skip[key] || x.locs[key] {
			continue
		}
		out = appendUnique(out, name)
	}
	return out
}

// locationIn returns the first known location named in text.
func (x *extractor) locationIn(text string) string {
	if len(x.locs) == 0 {
		return ""
	}
	for _, raw := range nameRe.FindAllString(text, -1) {
		if name := trimName(raw); x.locs[strings.ToLower(name)] {
			return name
		}
	}
	return ""
}

type span struct {
	text  string
	start int
}

// sentenceSpans splits text into sentences with their byte offsets.
func sentenceSpans(text string) []span {
	var out []span
	pos := 0
	for _, s := range Sentences(text) {
		i := strings.Index(text[pos:], s)
		if i < 0 {
			continue
		}
		out = append(out, span{text: s, start: pos + i})
		pos += i + len(s)
	}
	return out
}

// trimName drops leading grammar words and trailing connectives. A name made
// only of grammar words comes back empty.
func trimName(s string) string {
	words := strings.Fields(strings.TrimSpace(s))
	for len(words) > 0 && commonWords[words[0]] {
		words = words[1:]
	}
	for len(words) > 0 && (words[len(words)-1] == "of" || words[len(words)-1] == "the") {
		words = words[:len(words)-1]
	}
	return strings.Trim(strings.Join(words, " "), "'’-")
}

func cutItem(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if itemStops[w] {
			words = words[:i]
			break
		}
	}
	return strings.Join(words, " ")
}

func splitRarity(item string) (string, string) {
	words := strings.Fields(item)
	for i, w := range words {
		for _, r := range rarities {
			if w == r {
				rest := append(append([]string(nil), words[:i]...), words[i+1:]...)
				return strings.Join(rest, " "), r
			}
		}
	}
	return item, ""
}

func quantity(article string) int {
	if n, ok := numberWords[article]; ok {
		return n
	}
	n := 0
	for _, r := range article {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	if n == 1 {
		return 0
	}
	return n
}

func stripQuotes(s string) string {
	var b strings.Builder
	in := false
	for _, r := range s {
		switch r {
		case '"', '“', '”':
			in = !in
			continue
		}
		if !in {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func group(s string, m []int, i int) string {
	if 2*i+1 >= len(m) || m[2*i] < 0 {
		return ""
	}
	return s[m[2*i]:m[2*i+1]]
}

func lowerSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out[strings.ToLower(n)] = true
		}
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		dup := false
		for _, d := range dst {
			if strings.EqualFold(d, v) {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, v)
		}
	}
	return dst
}

func filterEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
