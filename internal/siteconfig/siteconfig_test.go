package siteconfig

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedTables(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "https://www.cargurus.ca", cfg.BaseURL())
	require.Equal(t, "https://www.cargurus.ca/Cars/inventorylisting/viewDetailsFilterViewInventoryListing.action", cfg.SearchURL())
	require.Equal(t, []int{10, 25, 50, 100, 200, 500}, cfg.Distances())
	require.Contains(t, cfg.Brands(), "toyota")
}

func TestLocationCodes(t *testing.T) {
	cfg := MustLoad()

	cases := []struct {
		name  string
		input string
		first string
		count int
	}{
		{"exact", "toronto", "M5V", 8},
		{"case insensitive", "VanCouver", "V6B", 8},
		{"substring", "downtown calgary area", "T2P", 8},
		{"postal passthrough", "k1p 5g4", "K1P5G4", 1},
		{"unknown falls back", "Atlantis", DefaultLocation, 1},
		{"empty falls back", "", DefaultLocation, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			codes := cfg.LocationCodes(tc.input)
			require.Len(t, codes, tc.count)
			require.Equal(t, tc.first, codes[0])
		})
	}
}

func TestLocationCodesReturnsCopy(t *testing.T) {
	cfg := MustLoad()
	codes := cfg.LocationCodes("toronto")
	codes[0] = "XXX"
	require.Equal(t, "M5V", cfg.PrimaryLocation("toronto"))
}

func TestCategoryCode(t *testing.T) {
	cfg := MustLoad()

	require.Equal(t, "m7", cfg.CategoryCode("Toyota"))
	require.Equal(t, "m6", cfg.CategoryCode("  HONDA "))
	// Longest contained key wins over shorter ones.
	require.Equal(t, "m43", cfg.CategoryCode("Mercedes-Benz GLC 300"))
	require.Equal(t, "m35", cfg.CategoryCode("2019 land rover defender"))
	require.Equal(t, "m18", cfg.CategoryCode("Aston Martin Vantage"))
	require.Equal(t, DefaultCategory, cfg.CategoryCode("Trabant"))
	require.False(t, cfg.KnownCategory("Trabant"))
	require.True(t, cfg.KnownCategory("kia"))
}

func TestModelCode(t *testing.T) {
	cfg := MustLoad()

	code, ok := cfg.ModelCode("Acura", "MDX")
	require.True(t, ok)
	require.Equal(t, "m4/d16", code)

	_, ok = cfg.ModelCode("Acura", "NSX")
	require.False(t, ok)

	_, ok = cfg.ModelCode("Trabant", "601")
	require.False(t, ok)
}

func TestNormalizeRadius(t *testing.T) {
	cfg := MustLoad()
	require.Equal(t, DefaultDistance, cfg.NormalizeRadius(0))
	require.Equal(t, 10, cfg.NormalizeRadius(1))
	require.Equal(t, 50, cfg.NormalizeRadius(60))
	require.Equal(t, 100, cfg.NormalizeRadius(100))
	require.Equal(t, 500, cfg.NormalizeRadius(10000))
}

func TestSuggest(t *testing.T) {
	cfg := MustLoad()
	name, score := cfg.Suggest("Toyata")
	require.Equal(t, "toyota", name)
	require.Greater(t, score, 0.8)

	name, score = cfg.Suggest("")
	require.Empty(t, name)
	require.Zero(t, score)
}

func TestParseRejectsBadTables(t *testing.T) {
	_, err := Parse([]byte(`{ not json`))
	require.Error(t, err)

	_, err = Parse([]byte(`{ locations: {} }`))
	require.Error(t, err)

	_, err = Parse([]byte(`{ baseURL: "https://x", searchPath: "/s", locations: { nowhere: [] } }`))
	require.Error(t, err)
}

func TestConcurrentReads(t *testing.T) {
	cfg := MustLoad()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cfg.LocationCodes("ottawa")
			_ = cfg.CategoryCode("subaru outback")
		}()
	}
	wg.Wait()
}
