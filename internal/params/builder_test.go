package params

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beacon-relay/internal/ga"
)

const (
	testAccount = "UA-1234-1"
	testDomain  = "www.example.com"
	testHash    = "217344784"
)

var visitTime = time.Unix(1300000000, 0)

func newTestBuilder(nonce uint32) *Builder {
	b := NewBuilder(Settings{
		AccountID:           testAccount,
		DomainName:          testDomain,
		AllowHash:           true,
		SitespeedSampleRate: 1,
	})
	b.Rand = func() uint32 { return nonce }
	return b
}

func newTestState(t *testing.T) State {
	t.Helper()
	v := ga.NewVisitor()
	require.NoError(t, v.SetUniqueID(12345))
	v.FirstVisitTime, v.PreviousVisitTime, v.CurrentVisitTime = visitTime, visitTime, visitTime

	s := ga.NewSession()
	s.ID = 987
	s.StartTime = visitTime
	return State{Visitor: v, Session: s}
}

func get(t *testing.T, p *Set, key string) string {
	t.Helper()
	v, ok := p.Get(key)
	require.True(t, ok, "missing %s", key)
	return v
}

func TestBuild_Pageview(t *testing.T) {
	page, err := ga.NewPage("/a")
	require.NoError(t, err)
	page.Title = "Home"
	st := newTestState(t)

	p, err := newTestBuilder(1234567).Build(Pageview{Page: page}, st)
	require.NoError(t, err)

	assert.Equal(t, "/a", get(t, p, "utmp"))
	assert.Equal(t, "Home", get(t, p, "utmdt"))
	assert.Equal(t, testAccount, get(t, p, "utmac"))
	assert.Equal(t, testDomain, get(t, p, "utmhn"))
	assert.Equal(t, "1234567", get(t, p, "utmn"))
	assert.Equal(t, "987", get(t, p, "utmhid"))
	assert.Equal(t, "1", get(t, p, "utms"))
	assert.Equal(t, 1, st.Session.TrackCount)

	utma := testHash + ".12345.1300000000.1300000000.1300000000.1"
	assert.Equal(t, utma, get(t, p, "__utma"))
	assert.Equal(t, testHash+".1.10.1300000000", get(t, p, "__utmb"))
	assert.Equal(t, testHash, get(t, p, "__utmc"))
	assert.Equal(t, "__utma="+utma+";", get(t, p, "utmcc"))

	_, ok := p.Get("__utmz")
	assert.False(t, ok)
	_, ok = p.Get("utmt")
	assert.False(t, ok, "pageviews carry no type")
	_, ok = p.Get("utme")
	assert.False(t, ok)

	assert.Equal(t, []string{
		"utmwv", "utmcs", "utmr", "utmfl", "utmje",
		"utmac", "utmhn", "utmn", "utmhid", "utms",
		"__utma", "__utmb", "__utmc", "utmcc",
		"utmp", "utmdt",
	}, p.Keys())
}

func TestBuild_VisitorParameters(t *testing.T) {
	st := newTestState(t)
	st.Visitor.Locale = "de_DE"
	st.Visitor.FlashVersion = "9.0 r28"
	st.Visitor.JavaEnabled = true
	st.Visitor.ScreenColorDepth = 24
	st.Visitor.ScreenResolution = "1024x768"

	p, err := newTestBuilder(1).Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	require.NoError(t, err)

	assert.Equal(t, "de-de", get(t, p, "utmul"))
	assert.Equal(t, "9.0 r28", get(t, p, "utmfl"))
	assert.Equal(t, "1", get(t, p, "utmje"))
	assert.Equal(t, "24-bit", get(t, p, "utmsc"))
	assert.Equal(t, "1024x768", get(t, p, "utmsr"))
}

func TestBuild_Event(t *testing.T) {
	tests := []struct {
		name     string
		event    *ga.Event
		wantUtme string
		wantNI   bool
	}{
		{"category and action", ga.NewEvent("Videos", "Play"), "5(VideosPlay)", false},
		{"label and value", func() *ga.Event {
			e := ga.NewEvent("Videos", "Play")
			e.Label = "trailer"
			e.SetValue(42)
			return e
		}(), "5(VideosPlaytrailer)(42)", false},
		{"non interaction", func() *ga.Event {
			e := ga.NewEvent("Videos", "Pause")
			e.NonInteraction = true
			return e
		}(), "5(VideosPause)", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := newTestBuilder(1).Build(EventHit{Event: tt.event}, newTestState(t))
			require.NoError(t, err)
			assert.Equal(t, "event", get(t, p, "utmt"))
			assert.Equal(t, tt.wantUtme, get(t, p, "utme"))
			_, ok := p.Get("utmni")
			assert.Equal(t, tt.wantNI, ok)
		})
	}
}

func TestBuild_EventValidation(t *testing.T) {
	st := newTestState(t)
	_, err := newTestBuilder(1).Build(EventHit{Event: ga.NewEvent("Videos", "")}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
	assert.Equal(t, 0, st.Session.TrackCount, "rejected hits are not counted")
}

func TestBuild_CustomVariables(t *testing.T) {
	st := newTestState(t)
	plan, err := ga.NewCustomVariable(1, "plan", "gold member", ga.ScopeVisitor)
	require.NoError(t, err)
	ab, err := ga.NewCustomVariable(3, "ab", "x", ga.ScopePage)
	require.NoError(t, err)
	st.CustomVariables = []*ga.CustomVariable{ab, plan}

	p, err := newTestBuilder(1).Build(EventHit{Event: ga.NewEvent("Videos", "Play")}, st)
	require.NoError(t, err)
	assert.Equal(t, "8(plan3!ab)9(gold%20member3!x)11(1)5(VideosPlay)", get(t, p, "utme"))
}

func TestBuild_TooManyCustomVariables(t *testing.T) {
	st := newTestState(t)
	for i := 1; i <= 6; i++ {
		st.CustomVariables = append(st.CustomVariables, &ga.CustomVariable{Index: i%5 + 1, Name: "n", Value: "v", Scope: ga.ScopePage})
	}
	_, err := newTestBuilder(1).Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
	assert.Equal(t, 0, st.Session.TrackCount)
}

func TestBuild_Ecommerce(t *testing.T) {
	total := 19.95
	tx := ga.NewTransaction("T-100")
	tx.Total = &total
	tx.City = "Cologne"
	item := ga.NewItem("X1")
	item.Name = "T-Shirt"
	item.Price = &total
	tx.AddItem(item)

	st := newTestState(t)
	st.Visitor.Locale = "en-US"
	cv, err := ga.NewCustomVariable(1, "plan", "gold", ga.ScopePage)
	require.NoError(t, err)
	st.CustomVariables = []*ga.CustomVariable{cv}

	b := newTestBuilder(1)
	p, err := b.Build(TransactionHit{Transaction: tx}, st)
	require.NoError(t, err)
	assert.Equal(t, "tran", get(t, p, "utmt"))
	assert.Equal(t, "T-100", get(t, p, "utmtid"))
	assert.Equal(t, "19.95", get(t, p, "utmtto"))
	assert.Equal(t, "Cologne", get(t, p, "utmtci"))
	for _, key := range []string{"utmul", "utme", "utmtst", "utmttx"} {
		_, ok := p.Get(key)
		assert.False(t, ok, key)
	}

	p, err = b.Build(ItemHit{Item: item}, st)
	require.NoError(t, err)
	assert.Equal(t, "item", get(t, p, "utmt"))
	assert.Equal(t, "T-100", get(t, p, "utmtid"))
	assert.Equal(t, "X1", get(t, p, "utmipc"))
	assert.Equal(t, "T-Shirt", get(t, p, "utmipn"))
	assert.Equal(t, "19.95", get(t, p, "utmipr"))
	assert.Equal(t, "1", get(t, p, "utmiqt"))
	assert.Equal(t, "2", get(t, p, "utms"))

	_, err = b.Build(TransactionHit{Transaction: ga.NewTransaction("T-101")}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
	_, err = b.Build(ItemHit{Item: ga.NewItem("")}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
}

func TestBuild_Campaign(t *testing.T) {
	st := newTestState(t)
	st.Campaign = &ga.Campaign{
		Type:         ga.CampaignReferral,
		CreationTime: visitTime,
		Source:       "google",
		Name:         "summer sale",
		Term:         "red+shoes",
	}

	b := newTestBuilder(1)
	p, err := b.Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	require.NoError(t, err)

	utmz := testHash + ".1300000000.1.1.utmcsr=google|utmccn=summer%20sale|utmctr=red%20shoes"
	assert.Equal(t, utmz, get(t, p, "__utmz"))
	assert.Equal(t, "1", get(t, p, "utmcn"))
	assert.True(t, strings.HasSuffix(get(t, p, "utmcc"), "+__utmz="+utmz+";"))

	p, err = b.Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Campaign.ResponseCount)
	assert.Equal(t, "1", get(t, p, "utmcr"))
	_, ok := p.Get("utmcn")
	assert.False(t, ok)
}

func TestBuild_CampaignWithoutSource(t *testing.T) {
	st := newTestState(t)
	st.Campaign = &ga.Campaign{Name: "nameless"}
	_, err := newTestBuilder(1).Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
	assert.Equal(t, 0, st.Campaign.ResponseCount)
}

func TestBuild_Sitespeed(t *testing.T) {
	tests := []struct {
		rate     int
		nonce    uint32
		wantUtme string
	}{
		{100, 7, "14(1200)(1234)"},
		{0, 0, ""},
		{50, 149, "14(1200)(1234)"},
		{50, 150, ""},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("rate %d nonce %d", tt.rate, tt.nonce), func(t *testing.T) {
			b := newTestBuilder(tt.nonce)
			b.Settings.SitespeedSampleRate = tt.rate
			page := &ga.Page{Path: "/slow"}
			require.NoError(t, page.SetLoadTime(1234))

			p, err := b.Build(Pageview{Page: page}, newTestState(t))
			require.NoError(t, err)
			got, _ := p.Get("utme")
			assert.Equal(t, tt.wantUtme, got)
		})
	}
}

func TestLoadTimeBucket(t *testing.T) {
	assert.Equal(t, 0, LoadTimeBucket(0))
	assert.Equal(t, 0, LoadTimeBucket(99))
	assert.Equal(t, 1200, LoadTimeBucket(1234))
	assert.Equal(t, 500000, LoadTimeBucket(10_000_000))
	assert.Equal(t, 0, LoadTimeBucket(-250))
}

func TestBuild_Social(t *testing.T) {
	page := &ga.Page{Path: "/post/7", Title: "Post"}
	social := &ga.SocialInteraction{Network: "Facebook", Action: "Like"}

	p, err := newTestBuilder(1).Build(SocialHit{Social: social, Page: page}, newTestState(t))
	require.NoError(t, err)
	assert.Equal(t, "social", get(t, p, "utmt"))
	assert.Equal(t, "Facebook", get(t, p, "utmsn"))
	assert.Equal(t, "Like", get(t, p, "utmsa"))
	assert.Equal(t, "/post/7", get(t, p, "utmsid"))
	assert.Equal(t, "/post/7", get(t, p, "utmp"))

	social.Target = "https://example.com/x"
	p, err = newTestBuilder(1).Build(SocialHit{Social: social, Page: page}, newTestState(t))
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", get(t, p, "utmsid"))
}

func TestBuild_LegacyCustomVariable(t *testing.T) {
	st := newTestState(t)
	_, err := newTestBuilder(1).Build(CustomVariableHit{}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)

	st.LegacyVar = "gold member"
	p, err := newTestBuilder(1).Build(CustomVariableHit{}, st)
	require.NoError(t, err)
	assert.Equal(t, "var", get(t, p, "utmt"))
	assert.Equal(t, testHash+".gold%20member", get(t, p, "__utmv"))
	assert.True(t, strings.HasSuffix(get(t, p, "utmcc"), "+__utmv="+testHash+".gold%20member;"))
}

func TestBuild_SessionLimit(t *testing.T) {
	st := newTestState(t)
	st.Session.TrackCount = ga.MaxTrackCount - 1
	b := newTestBuilder(1)

	_, err := b.Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	require.NoError(t, err)
	_, err = b.Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
}

func TestBuild_RequiresAssignedVisitorID(t *testing.T) {
	st := newTestState(t)
	st.Visitor = ga.NewVisitor()
	_, err := newTestBuilder(1).Build(Pageview{Page: &ga.Page{Path: "/"}}, st)
	assert.ErrorIs(t, err, ga.ErrValidation)
}

func TestBuild_Options(t *testing.T) {
	b := newTestBuilder(1)
	b.Settings.AllowHash = false
	b.Settings.AnonymizeIP = true

	p, err := b.Build(Pageview{Page: &ga.Page{Path: "/"}}, newTestState(t))
	require.NoError(t, err)
	assert.Equal(t, "1", get(t, p, "aip"))
	assert.Equal(t, "1", get(t, p, "__utmc"))
	assert.True(t, strings.HasPrefix(get(t, p, "__utma"), "1.12345."))
}

func TestSet(t *testing.T) {
	s := NewDefaultSet()
	assert.Equal(t, "utmwv=5.2.2&utmcs=-&utmr=-&utmfl=-&utmje=-", s.Encode())

	s.Set("utmdt", "Hello World & more")
	s.Set("utmcs", "UTF-8")
	s.Set("empty", "")
	s.Append("utme", "5(a)")
	s.Append("utme", "14(b)")
	s.Append("utme", "")

	assert.Equal(t, "utmwv=5.2.2&utmcs=UTF-8&utmr=-&utmfl=-&utmje=-&utmdt=Hello%20World%20%26%20more&utme=5%28a%2914%28b%29", s.Encode())
	assert.Equal(t, 7, s.Len())

	s.Del("utmr")
	s.Del("missing")
	_, ok := s.Get("utmr")
	assert.False(t, ok)
	assert.NotContains(t, s.Keys(), "utmr")
}
