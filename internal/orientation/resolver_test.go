package orientation_test

import (
	"testing"

	"github.com/e7canasta/orion-care-sensor/modules/docscan/internal/orientation"
)

func TestResolve(t *testing.T) {
	landscape := orientation.Dimensions{Width: 1920, Height: 1080}
	portrait := orientation.Dimensions{Width: 1080, Height: 1920}

	portraitView := orientation.Context{Platform: orientation.PlatformSensor, ViewportWidth: 390, ViewportHeight: 844}
	landscapeView := orientation.Context{Platform: orientation.PlatformSensor, ViewportWidth: 844, ViewportHeight: 390}

	tests := []struct {
		name        string
		frame       orientation.Dimensions
		ctx         orientation.Context
		want        orientation.Dimensions
		wantRotated bool
		wantAmbig   bool
	}{
		{"sensor landscape frame in portrait viewport swaps", landscape, portraitView, portrait, true, false},
		{"sensor portrait frame in landscape viewport swaps", portrait, landscapeView, landscape, true, false},
		{"sensor landscape frame in landscape viewport keeps", landscape, landscapeView, landscape, false, false},
		{"sensor portrait frame in portrait viewport keeps", portrait, portraitView, portrait, false, false},
		{"prerotated never swaps", landscape, orientation.Context{Platform: orientation.PlatformPreRotated, ViewportWidth: 390, ViewportHeight: 844}, landscape, false, false},
		{"prerotated ignores missing viewport", portrait, orientation.Context{Platform: orientation.PlatformPreRotated}, portrait, false, false},
		{"sensor without viewport is ambiguous", landscape, orientation.Context{Platform: orientation.PlatformSensor}, landscape, false, true},
		{"unknown platform is ambiguous", landscape, orientation.Context{ViewportWidth: 390, ViewportHeight: 844}, landscape, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := orientation.Resolve(tt.frame, tt.ctx)
			if got.Dimensions != tt.want {
				t.Errorf("Resolve() dims = %+v, want %+v", got.Dimensions, tt.want)
			}
			if got.Rotated != tt.wantRotated {
				t.Errorf("Resolve() rotated = %v, want %v", got.Rotated, tt.wantRotated)
			}
			if got.Ambiguous != tt.wantAmbig {
				t.Errorf("Resolve() ambiguous = %v, want %v", got.Ambiguous, tt.wantAmbig)
			}
		})
	}
}

// TestResolveIdempotent validates repeated resolution of the same input is stable.
func TestResolveIdempotent(t *testing.T) {
	frame := orientation.Dimensions{Width: 1280, Height: 720}
	ctx := orientation.Context{Platform: orientation.PlatformSensor, ViewportWidth: 720, ViewportHeight: 1280}

	first := orientation.Resolve(frame, ctx)
	for i := 0; i < 100; i++ {
		if got := orientation.Resolve(frame, ctx); got != first {
			t.Fatalf("iteration %d: Resolve() = %+v, want %+v", i, got, first)
		}
	}
}

func TestParsePlatform(t *testing.T) {
	cases := map[string]orientation.Platform{
		"android":    orientation.PlatformSensor,
		"sensor":     orientation.PlatformSensor,
		"ios":        orientation.PlatformPreRotated,
		"prerotated": orientation.PlatformPreRotated,
		"":           orientation.PlatformUnknown,
	}
	for in, want := range cases {
		got, err := orientation.ParsePlatform(in)
		if err != nil {
			t.Errorf("ParsePlatform(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParsePlatform(%q) = %v, want %v", in, got, want)
		}
	}

	if _, err := orientation.ParsePlatform("windows-phone"); err == nil {
		t.Error("ParsePlatform(windows-phone) expected error")
	}
}
