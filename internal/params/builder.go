package params

import (
	"math"
	"strconv"
	"strings"

	"beacon-relay/internal/codec"
	"beacon-relay/internal/ga"
	"beacon-relay/internal/x10"
)

const (
	campaignDelimiter = "|"
	// sessionToken is the constant third field of __utmb.
	sessionToken = "10"
)

// Settings are the tracker-wide values every beacon carries.
type Settings struct {
	AccountID           string
	DomainName          string
	AllowHash           bool
	AnonymizeIP         bool
	SitespeedSampleRate int // 0-100
}

// State is the per end-user data a beacon is built from. Session and
// Campaign are the only parts Build mutates.
type State struct {
	Visitor         *ga.Visitor
	Session         *ga.Session
	Campaign        *ga.Campaign
	CustomVariables []*ga.CustomVariable
	// LegacyVar is the value set through the deprecated _setVar call.
	LegacyVar string
}

type Builder struct {
	Settings Settings
	// Rand generates the request nonce, codec.Random32 when nil.
	Rand func() uint32
}

func NewBuilder(s Settings) *Builder {
	return &Builder{Settings: s, Rand: codec.Random32}
}

// Build validates hit and state, counts the request against the session and
// campaign, and returns the complete parameter set.
func (b *Builder) Build(hit Hit, st State) (*Set, error) {
	if err := b.validate(hit, st); err != nil {
		return nil, err
	}

	if err := st.Session.IncrementTrackCount(); err != nil {
		return nil, err
	}
	if st.Campaign != nil {
		st.Campaign.IncrementResponseCount()
	}

	kind := hit.Kind()
	p := NewDefaultSet()
	nonce := b.nonce()
	b.buildBase(p, kind, nonce, st)

	if !kind.ecommerce() {
		b.buildVisitor(p, st.Visitor)
		b.buildCustomVariables(p, st.CustomVariables)
	}

	domainHash := codec.DomainHash(b.Settings.DomainName, b.Settings.AllowHash)
	b.buildCampaign(p, domainHash, st)
	b.buildCookies(p, domainHash, st)

	switch h := hit.(type) {
	case Pageview:
		b.buildPage(p, nonce, h.Page)
	case EventHit:
		b.buildEvent(p, h.Event)
	case TransactionHit:
		b.buildTransaction(p, h.Transaction)
	case ItemHit:
		b.buildItem(p, h.Item)
	case SocialHit:
		b.buildPage(p, nonce, h.Page)
		b.buildSocial(p, h.Social, h.Page)
	case CustomVariableHit:
	}
	return p, nil
}

func (b *Builder) validate(hit Hit, st State) error {
	if st.Session == nil {
		return &ga.ValidationError{Entity: "session", Reason: "missing session"}
	}
	if st.Visitor == nil {
		return &ga.ValidationError{Entity: "visitor", Reason: "missing visitor"}
	}
	if !st.Visitor.UniqueID().IsAssigned() {
		return &ga.ValidationError{Entity: "visitor", Reason: "unique id is not assigned"}
	}
	if st.Campaign != nil {
		if err := st.Campaign.Validate(); err != nil {
			return err
		}
	}
	if _, ok := hit.(CustomVariableHit); ok && st.LegacyVar == "" {
		return &ga.ValidationError{Entity: "custom variable", Reason: "no legacy variable value set"}
	}
	if !hit.Kind().ecommerce() {
		if err := validateCustomVariables(st.CustomVariables); err != nil {
			return err
		}
	}
	return hit.validate()
}

func validateCustomVariables(vars []*ga.CustomVariable) error {
	if len(vars) > ga.MaxCustomVariables {
		return &ga.ValidationError{Entity: "custom variable", Reason: "the sum of all custom variables cannot exceed 5 in any given request"}
	}
	seen := map[int]bool{}
	for _, cv := range vars {
		if err := cv.Validate(); err != nil {
			return err
		}
		if seen[cv.Index] {
			return &ga.ValidationError{Entity: "custom variable", Reason: "duplicate index " + strconv.Itoa(cv.Index)}
		}
		seen[cv.Index] = true
	}
	return nil
}

func (b *Builder) nonce() uint32 {
	if b.Rand == nil {
		return codec.Random32()
	}
	return b.Rand()
}

func (b *Builder) buildBase(p *Set, kind Kind, nonce uint32, st State) {
	p.Set("utmac", b.Settings.AccountID)
	p.Set("utmhn", b.Settings.DomainName)
	p.SetOptional("utmt", kind.Token())
	p.SetInt("utmn", int64(nonce))
	if b.Settings.AnonymizeIP {
		p.Set("aip", "1")
	}
	p.SetInt("utmhid", int64(st.Session.ID))
	p.SetInt("utms", int64(st.Session.TrackCount))
}

func (b *Builder) buildVisitor(p *Set, v *ga.Visitor) {
	if v.Locale != "" {
		p.Set("utmul", strings.ToLower(strings.ReplaceAll(v.Locale, "_", "-")))
	}
	p.SetOptional("utmfl", v.FlashVersion)
	if v.JavaEnabled {
		p.Set("utmje", "1")
	}
	if v.ScreenColorDepth > 0 {
		p.Set("utmsc", strconv.Itoa(v.ScreenColorDepth)+"-bit")
	}
	p.SetOptional("utmsr", v.ScreenResolution)
}

// buildCustomVariables encodes names and values before handing them to X10,
// as the browser client does.
func (b *Builder) buildCustomVariables(p *Set, vars []*ga.CustomVariable) {
	if len(vars) == 0 {
		return
	}
	enc := x10.New()
	for _, cv := range vars {
		enc.SetKey(x10.CustomVarNameProjectID, cv.Index, codec.EncodeURIComponent(cv.Name))
		enc.SetKey(x10.CustomVarValueProjectID, cv.Index, codec.EncodeURIComponent(cv.Value))
		if cv.Scope != 0 && cv.Scope != ga.ScopePage {
			enc.SetKey(x10.CustomVarScopeProjectID, cv.Index, strconv.Itoa(int(cv.Scope)))
		}
	}
	p.Append("utme", enc.RenderURLString())
}

// buildCampaign writes the __utmz attribution string. Only spaces and
// pluses are escaped inside the values.
func (b *Builder) buildCampaign(p *Set, domainHash int, st State) {
	c := st.Campaign
	if c == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(strconv.Itoa(domainHash))
	sb.WriteByte('.')
	sb.WriteString(strconv.FormatInt(c.CreationTime.Unix(), 10))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(st.Visitor.VisitCount))
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(c.ResponseCount))
	sb.WriteByte('.')

	escaper := strings.NewReplacer("+", "%20", " ", "%20")
	for _, f := range c.Fields() {
		sb.WriteString(f[0])
		sb.WriteByte('=')
		sb.WriteString(escaper.Replace(f[1]))
		sb.WriteString(campaignDelimiter)
	}
	p.Set("__utmz", strings.TrimRight(sb.String(), campaignDelimiter))

	if c.IsNew() {
		p.Set("utmcn", "1")
	} else {
		p.Set("utmcr", "1")
	}
}

func (b *Builder) buildCookies(p *Set, domainHash int, st State) {
	hash := strconv.Itoa(domainHash)
	v, s := st.Visitor, st.Session
	uid, _ := v.UniqueID().Get()

	utma := strings.Join([]string{
		hash,
		strconv.FormatUint(uint64(uid), 10),
		unix(v.FirstVisitTime.Unix()),
		unix(v.PreviousVisitTime.Unix()),
		unix(v.CurrentVisitTime.Unix()),
		strconv.Itoa(v.VisitCount),
	}, ".")
	utmb := strings.Join([]string{
		hash,
		strconv.Itoa(s.TrackCount),
		sessionToken,
		unix(s.StartTime.Unix()),
	}, ".")

	p.Set("__utma", utma)
	p.Set("__utmb", utmb)
	p.Set("__utmc", hash)
	if st.LegacyVar != "" {
		p.Set("__utmv", hash+"."+codec.EncodeURIComponent(st.LegacyVar))
	}

	cookies := []string{"__utma=" + utma + ";"}
	if z, ok := p.Get("__utmz"); ok && z != "" {
		cookies = append(cookies, "__utmz="+z+";")
	}
	if vv, ok := p.Get("__utmv"); ok && vv != "" {
		cookies = append(cookies, "__utmv="+vv+";")
	}
	p.Set("utmcc", strings.Join(cookies, "+"))
}

func (b *Builder) buildPage(p *Set, nonce uint32, page *ga.Page) {
	p.Set("utmp", page.Path)
	p.SetOptional("utmdt", page.Title)
	p.SetOptional("utmcs", page.Charset)
	p.SetOptional("utmr", page.Referrer)

	ms, ok := page.LoadTime()
	if !ok || int(nonce%100) >= b.Settings.SitespeedSampleRate {
		return
	}
	enc := x10.New()
	enc.SetKey(x10.SitespeedProjectID, x10.ObjectKeyNum, strconv.Itoa(LoadTimeBucket(ms)))
	enc.SetValue(x10.SitespeedProjectID, x10.ValueValueNum, strconv.Itoa(ms))
	p.Append("utme", enc.RenderURLString())
}

// LoadTimeBucket rounds a load time down to 100ms and caps it like ga.js.
func LoadTimeBucket(ms int) int {
	bucket := math.Floor(float64(ms) / 100)
	return int(math.Max(math.Min(bucket, 5000), 0)) * 100
}

func (b *Builder) buildEvent(p *Set, e *ga.Event) {
	enc := x10.New()
	enc.SetKey(x10.EventProjectID, x10.ObjectKeyNum, e.Category)
	enc.SetKey(x10.EventProjectID, x10.TypeKeyNum, e.Action)
	if e.Label != "" {
		enc.SetKey(x10.EventProjectID, x10.LabelKeyNum, e.Label)
	}
	if e.Value != nil {
		enc.SetValue(x10.EventProjectID, x10.ValueValueNum, strconv.Itoa(*e.Value))
	}
	p.Append("utme", enc.RenderURLString())

	if e.NonInteraction {
		p.Set("utmni", "1")
	}
}

func (b *Builder) buildTransaction(p *Set, t *ga.Transaction) {
	p.SetOptional("utmtid", t.OrderID())
	p.SetOptional("utmtst", t.Affiliation)
	p.SetFloat("utmtto", t.Total)
	p.SetFloat("utmttx", t.Tax)
	p.SetFloat("utmtsp", t.Shipping)
	p.SetOptional("utmtci", t.City)
	p.SetOptional("utmtrg", t.Region)
	p.SetOptional("utmtco", t.Country)
}

func (b *Builder) buildItem(p *Set, it *ga.Item) {
	p.SetOptional("utmtid", it.OrderID)
	p.Set("utmipc", it.SKU)
	p.SetOptional("utmipn", it.Name)
	p.SetOptional("utmiva", it.Variation)
	p.SetFloat("utmipr", it.Price)
	if it.Quantity > 0 {
		p.SetInt("utmiqt", int64(it.Quantity))
	}
}

func (b *Builder) buildSocial(p *Set, s *ga.SocialInteraction, page *ga.Page) {
	p.Set("utmsn", s.Network)
	p.Set("utmsa", s.Action)
	target := s.Target
	if target == "" {
		target = page.Path
	}
	p.SetOptional("utmsid", target)
}

func unix(sec int64) string {
	return strconv.FormatInt(sec, 10)
}
