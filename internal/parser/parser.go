package parser

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MiaMao0615/AR-Accompanied/internal/geo"
	"github.com/MiaMao0615/AR-Accompanied/pkg/core"
)

var (
	// ErrMissingArgs is returned when a command carries too few arguments.
	ErrMissingArgs = errors.New("missing arguments")
	// ErrInvalidPose is returned for unparsable pose components.
	ErrInvalidPose = errors.New("invalid pose")
)

// Service parses command arguments into typed engine inputs.
type Service interface {
	ParseTrackingStatus(args []string) (TrackingStatus, error)
	ParseAnchorPose(args []string) (AnchorPose, error)
	ParseSpotSelection(args []string) (SpotSelection, error)
	ParseAnchorID(args []string) (string, error)
}

// Parser provides pure []string -> typed input conversion.
// It has zero external dependencies beyond a logger.
type Parser struct {
	logger *slog.Logger
}

var _ Service = (*Parser)(nil)

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

func need(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: expected %d, got %d", ErrMissingArgs, n, len(args))
	}
	return nil
}

// ParseAnchorID parses [anchor].
func (p *Parser) ParseAnchorID(args []string) (string, error) {
	if err := need(args, 1); err != nil {
		return "", err
	}
	id := strings.TrimSpace(args[0])
	if id == "" {
		return "", fmt.Errorf("%w: empty anchor id", ErrMissingArgs)
	}
	return id, nil
}

// ParseTrackingStatus parses [anchor, tier].
func (p *Parser) ParseTrackingStatus(args []string) (TrackingStatus, error) {
	var out TrackingStatus
	if err := need(args, 2); err != nil {
		return out, err
	}
	id, err := p.ParseAnchorID(args)
	if err != nil {
		return out, err
	}
	tier, err := core.ParseConfidenceTier(args[1])
	if err != nil {
		return out, fmt.Errorf("anchor %s: %w", id, err)
	}
	out.AnchorID, out.Tier = id, tier
	return out, nil
}

// ParseAnchorPose parses [anchor, "x,y,z", "qx,qy,qz,qw"?, "sx,sy,sz"?].
// Missing rotation is identity and missing scale is one.
func (p *Parser) ParseAnchorPose(args []string) (AnchorPose, error) {
	var out AnchorPose
	if err := need(args, 2); err != nil {
		return out, err
	}
	id, err := p.ParseAnchorID(args)
	if err != nil {
		return out, err
	}

	pose := core.NewPose(core.Vec3{})
	if pose.Position, err = geo.Vec3FromString(args[1]); err != nil {
		return out, fmt.Errorf("%w: position %q: %v", ErrInvalidPose, args[1], err)
	}
	if len(args) > 2 && args[2] != "" {
		if pose.Rotation, err = geo.QuatFromString(args[2]); err != nil {
			return out, fmt.Errorf("%w: rotation %q: %v", ErrInvalidPose, args[2], err)
		}
	}
	if len(args) > 3 && args[3] != "" {
		if pose.Scale, err = geo.Vec3FromString(args[3]); err != nil {
			return out, fmt.Errorf("%w: scale %q: %v", ErrInvalidPose, args[3], err)
		}
	}

	out.AnchorID, out.Pose = id, pose.Sanitized()
	p.logger.Debug("parsed anchor pose", "anchor", id, "position", out.Pose.Position)
	return out, nil
}

// ParseSpotSelection parses [anchor, spotId].
func (p *Parser) ParseSpotSelection(args []string) (SpotSelection, error) {
	var out SpotSelection
	if err := need(args, 2); err != nil {
		return out, err
	}
	id, err := p.ParseAnchorID(args)
	if err != nil {
		return out, err
	}
	spot := strings.TrimSpace(args[1])
	if spot == "" {
		return out, fmt.Errorf("%w: empty spot id", ErrMissingArgs)
	}
	out.AnchorID, out.SpotID = id, spot
	return out, nil
}
