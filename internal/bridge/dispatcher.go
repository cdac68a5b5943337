package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"sigbridge/internal/hass"
)

const rosterLimit = 10

const helpText = `🤖 Commands:
help — this message
status — summary of lights, switches and locks
status <area> — summary for one area
lights | switches | list sensors — entity rosters
list <area> — entities in an area, grouped by domain
temp — temperature readings
locks — lock states
turn on <name> / turn off <name> / toggle <name>
dim <name> to <N>%
is <name> on? / is <name> locked?
refresh — rebuild the entity cache`

var (
	dimPattern   = regexp.MustCompile(`^dim (.+?) to (\d+)\s*%?$`)
	queryPattern = regexp.MustCompile(`^is (.+?) (on|off|locked|unlocked)\??$`)
)

// Dispatcher pattern-matches command text against a fixed grammar and
// renders a human-readable reply. It holds no state between calls
// beyond the shared resolver. Backend and resolution failures never
// escape: every branch substitutes an error reply instead.
type Dispatcher struct {
	resolver *Resolver
	client   *hass.Client
	logger   *slog.Logger
}

func NewDispatcher(resolver *Resolver, client *hass.Client, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{resolver: resolver, client: client, logger: logger}
}

// Dispatch interprets one command. Branches are checked in precedence
// order; the first match wins. An empty return means "no reply".
func (d *Dispatcher) Dispatch(ctx context.Context, raw string) string {
	text := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case text == "help" || text == "?":
		return helpText
	case text == "status":
		return d.status(ctx)
	case strings.HasPrefix(text, "status "):
		return d.areaStatus(ctx, strings.TrimSpace(strings.TrimPrefix(text, "status ")))
	case text == "temperature" || text == "temp":
		return d.temperatures(ctx)
	case text == "locks":
		return d.locks(ctx)
	case text == "lights" || text == "list lights":
		return d.roster(ctx, "light", "💡 Lights")
	case text == "switches" || text == "list switches":
		return d.roster(ctx, "switch", "🔌 Switches")
	case text == "list sensors":
		return d.roster(ctx, "sensor", "📟 Sensors")
	case strings.HasPrefix(text, "list "):
		return d.areaList(ctx, strings.TrimSpace(strings.TrimPrefix(text, "list ")))
	case strings.HasPrefix(text, "turn on "):
		return d.action(ctx, strings.TrimPrefix(text, "turn on "), "turn_on")
	case strings.HasPrefix(text, "turn off "):
		return d.action(ctx, strings.TrimPrefix(text, "turn off "), "turn_off")
	case strings.HasPrefix(text, "toggle "):
		return d.action(ctx, strings.TrimPrefix(text, "toggle "), "toggle")
	case dimPattern.MatchString(text):
		m := dimPattern.FindStringSubmatch(text)
		return d.dim(ctx, m[1], m[2])
	case queryPattern.MatchString(text):
		m := queryPattern.FindStringSubmatch(text)
		return d.query(ctx, m[1])
	case text == "refresh":
		return d.refresh(ctx)
	default:
		return fmt.Sprintf("🤷 Unrecognized command: %q. Send \"help\" for the command list.", raw)
	}
}

func (d *Dispatcher) status(ctx context.Context) string {
	entities, err := d.resolver.Entities(ctx)
	if err != nil {
		return errorReply(err)
	}
	return renderSummary("🏠 Home Status", entities)
}

func (d *Dispatcher) areaStatus(ctx context.Context, area string) string {
	entities, err := d.matchArea(ctx, area)
	if err != nil {
		return errorReply(err)
	}
	if len(entities) == 0 {
		return fmt.Sprintf("🤷 No entities matching %q", area)
	}
	return renderSummary("🏠 Status: "+area, entities)
}

func renderSummary(header string, entities []hass.Entity) string {
	var lightsOn, lights, switchesOn, switches, locked, unlocked int
	var climate []hass.Entity
	for _, e := range entities {
		switch e.Domain() {
		case "light":
			lights++
			if e.State == "on" {
				lightsOn++
			}
		case "switch":
			switches++
			if e.State == "on" {
				switchesOn++
			}
		case "lock":
			if e.State == "locked" {
				locked++
			} else {
				unlocked++
			}
		case "climate":
			climate = append(climate, e)
		}
	}

	lines := []string{header}
	if lights > 0 {
		lines = append(lines, fmt.Sprintf("💡 Lights: %d/%d on", lightsOn, lights))
	}
	if switches > 0 {
		lines = append(lines, fmt.Sprintf("🔌 Switches: %d/%d on", switchesOn, switches))
	}
	if locked+unlocked > 0 {
		lines = append(lines, fmt.Sprintf("🔒 Locks: %d locked, %d unlocked", locked, unlocked))
	}
	for _, e := range climate {
		line := fmt.Sprintf("🌡️ %s: %s", e.FriendlyName(), e.State)
		if temp, ok := e.Attributes["current_temperature"]; ok {
			line += fmt.Sprintf(" (%v°)", temp)
		}
		lines = append(lines, line)
	}
	if len(lines) == 1 {
		lines = append(lines, "No lights, switches or locks found.")
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) temperatures(ctx context.Context) string {
	entities, err := d.resolver.Entities(ctx)
	if err != nil {
		return errorReply(err)
	}
	var lines []string
	for _, e := range entities {
		if isTemperatureUnit(e.Unit()) {
			lines = append(lines, fmt.Sprintf("🌡️ %s: %s%s", e.FriendlyName(), e.State, e.Unit()))
		}
	}
	if len(lines) == 0 {
		return "🤷 No temperature sensors found."
	}
	return strings.Join(lines, "\n")
}

func isTemperatureUnit(unit string) bool {
	switch unit {
	case "°C", "°F", "K":
		return true
	}
	return false
}

func (d *Dispatcher) locks(ctx context.Context) string {
	entities, err := d.resolver.Entities(ctx)
	if err != nil {
		return errorReply(err)
	}
	var lines []string
	for _, e := range entities {
		if e.Domain() != "lock" {
			continue
		}
		icon := "🔓"
		if e.State == "locked" {
			icon = "🔒"
		}
		lines = append(lines, fmt.Sprintf("%s %s: %s", icon, e.FriendlyName(), e.State))
	}
	if len(lines) == 0 {
		return "🤷 No locks found."
	}
	return strings.Join(lines, "\n")
}

func (d *Dispatcher) roster(ctx context.Context, entityDomain, header string) string {
	entities, err := d.resolver.Entities(ctx)
	if err != nil {
		return errorReply(err)
	}
	var on, off []string
	for _, e := range entities {
		if e.Domain() != entityDomain {
			continue
		}
		if e.State == "on" {
			on = append(on, e.FriendlyName())
		} else {
			off = append(off, e.FriendlyName())
		}
	}
	if len(on)+len(off) == 0 {
		return fmt.Sprintf("🤷 No %s entities found.", entityDomain)
	}

	lines := []string{header}
	if len(on) > 0 {
		lines = append(lines, fmt.Sprintf("On (%d): %s", len(on), truncateNames(on)))
	}
	if len(off) > 0 {
		lines = append(lines, fmt.Sprintf("Off (%d): %s", len(off), truncateNames(off)))
	}
	return strings.Join(lines, "\n")
}

// truncateNames joins at most rosterLimit names, appending a "+N more"
// suffix for the remainder.
func truncateNames(names []string) string {
	if len(names) <= rosterLimit {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s +%d more", strings.Join(names[:rosterLimit], ", "), len(names)-rosterLimit)
}

func (d *Dispatcher) areaList(ctx context.Context, area string) string {
	entities, err := d.matchArea(ctx, area)
	if err != nil {
		return errorReply(err)
	}
	if len(entities) == 0 {
		return fmt.Sprintf("🤷 No entities matching %q", area)
	}

	byDomain := make(map[string][]hass.Entity)
	for _, e := range entities {
		byDomain[e.Domain()] = append(byDomain[e.Domain()], e)
	}
	domains := make([]string, 0, len(byDomain))
	for dom := range byDomain {
		domains = append(domains, dom)
	}
	sort.Strings(domains)

	lines := []string{fmt.Sprintf("📋 %s (%d entities)", area, len(entities))}
	for _, dom := range domains {
		lines = append(lines, dom+":")
		for _, e := range byDomain[dom] {
			lines = append(lines, fmt.Sprintf("  %s: %s", e.FriendlyName(), e.State))
		}
	}
	return strings.Join(lines, "\n")
}

// matchArea filters entities whose friendly name or id contains the
// area string. Heuristic by design; there is no area registry here.
func (d *Dispatcher) matchArea(ctx context.Context, area string) ([]hass.Entity, error) {
	entities, err := d.resolver.Entities(ctx)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(area)
	var matched []hass.Entity
	for _, e := range entities {
		if strings.Contains(strings.ToLower(e.FriendlyName()), needle) ||
			strings.Contains(strings.ToLower(e.EntityID), needle) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

func (d *Dispatcher) action(ctx context.Context, name, service string) string {
	entity, ok, err := d.resolver.Resolve(ctx, name)
	if err != nil {
		return errorReply(err)
	}
	if !ok {
		return fmt.Sprintf("❌ Not found: %s", name)
	}

	serviceDomain := entity.Domain()
	if serviceDomain == "lock" {
		switch service {
		case "turn_on":
			service = "lock"
		case "turn_off":
			service = "unlock"
		}
	}

	if err := d.client.CallService(ctx, serviceDomain, service, map[string]any{"entity_id": entity.EntityID}); err != nil {
		return errorReply(err)
	}

	switch service {
	case "turn_on":
		return "✅ Turned on: " + entity.FriendlyName()
	case "turn_off":
		return "✅ Turned off: " + entity.FriendlyName()
	case "lock":
		return "🔒 Locked: " + entity.FriendlyName()
	case "unlock":
		return "🔓 Unlocked: " + entity.FriendlyName()
	default:
		return "🔁 Toggled: " + entity.FriendlyName()
	}
}

// dim sets brightness on a light. The percentage is passed through to
// the backend verbatim; out-of-range values are the backend's problem
// to reject, not ours to clamp.
func (d *Dispatcher) dim(ctx context.Context, name, percent string) string {
	entity, ok, err := d.resolver.Resolve(ctx, name)
	if err != nil {
		return errorReply(err)
	}
	if !ok {
		return fmt.Sprintf("❌ Not found: %s", name)
	}
	if entity.Domain() != "light" {
		return fmt.Sprintf("❌ %s is not a light", entity.FriendlyName())
	}

	value, err := strconv.Atoi(percent)
	if err != nil {
		return errorReply(err)
	}
	err = d.client.CallService(ctx, "light", "turn_on", map[string]any{
		"entity_id":      entity.EntityID,
		"brightness_pct": value,
	})
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("💡 Set %s to %d%%", entity.FriendlyName(), value)
}

func (d *Dispatcher) query(ctx context.Context, name string) string {
	entity, ok, err := d.resolver.Resolve(ctx, name)
	if err != nil {
		return errorReply(err)
	}
	if !ok {
		return fmt.Sprintf("❌ Not found: %s", name)
	}
	// The cached state can be a full TTL stale; a direct state question
	// gets a live read, falling back to the cache if the backend balks.
	state := entity.State
	if live, err := d.client.State(ctx, entity.EntityID); err == nil {
		state = live.State
	}
	return fmt.Sprintf("%s %s is %s", stateIcon(state), entity.FriendlyName(), state)
}

func stateIcon(state string) string {
	switch state {
	case "on", "home", "open":
		return "🟢"
	case "off", "away", "closed":
		return "⚪"
	case "locked":
		return "🔒"
	case "unlocked":
		return "🔓"
	default:
		return "ℹ️"
	}
}

func (d *Dispatcher) refresh(ctx context.Context) string {
	if err := d.resolver.Refresh(ctx); err != nil {
		return errorReply(err)
	}
	entities, err := d.resolver.Entities(ctx)
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf("🔄 Entity cache refreshed (%d entities)", len(entities))
}

func errorReply(err error) string {
	return "❌ Error: " + err.Error()
}
