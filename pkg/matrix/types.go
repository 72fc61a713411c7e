package matrix

import "encoding/json"

// LabelType is the prefix of the image labels written by the build.
const LabelType = "org.opencontainers.image"

// CLIGossArgs keeps a cli image running long enough for goss to inspect it.
const CLIGossArgs = "tail -f /dev/null"

// BuildImage is an image to be built for one channel of an app.
type BuildImage struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// PublishedVersion is the version found in the registry, nil when nothing was found.
	PublishedVersion *string `json:"published_version,omitempty"`

	Tags      []string `json:"tags"`
	Platforms []string `json:"platforms,omitempty"`

	// Compared is set when the registry was consulted, that is when the build was not forced.
	// published_version is then always encoded, as null when nothing was found.
	Compared bool `json:"-"`
}

func (i BuildImage) MarshalJSON() ([]byte, error) {
	type image BuildImage
	if !i.Compared {
		return json.Marshal(image(i))
	}

	return json.Marshal(struct {
		Name             string   `json:"name"`
		Version          string   `json:"version"`
		PublishedVersion *string  `json:"published_version"`
		Tags             []string `json:"tags"`
		Platforms        []string `json:"platforms,omitempty"`
	}{
		Name:             i.Name,
		Version:          i.Version,
		PublishedVersion: i.PublishedVersion,
		Tags:             i.Tags,
		Platforms:        i.Platforms,
	})
}

// PlatformJob is a single platform build of a BuildImage.
type PlatformJob struct {
	Name         string `json:"name"`
	Platform     string `json:"platform"`
	TargetOS     string `json:"target_os"`
	TargetArch   string `json:"target_arch"`
	Version      string `json:"version"`
	Channel      string `json:"channel"`
	LabelType    string `json:"label_type"`
	Dockerfile   string `json:"dockerfile"`
	Context      string `json:"context"`
	GossConfig   string `json:"goss_config"`
	GossArgs     string `json:"goss_args"`
	TestsEnabled bool   `json:"tests_enabled"`
}

// Result is the build matrix.
type Result struct {
	Images         []BuildImage  `json:"images"`
	ImagePlatforms []PlatformJob `json:"imagePlatforms"`
}

// NewResult returns an empty matrix that encodes as empty arrays rather than nulls.
func NewResult() Result {
	return Result{
		Images:         []BuildImage{},
		ImagePlatforms: []PlatformJob{},
	}
}

// Merge returns a new Result holding the entries of r followed by those of other.
// Neither r nor other is modified.
func (r Result) Merge(other Result) Result {
	merged := Result{
		Images:         make([]BuildImage, 0, len(r.Images)+len(other.Images)),
		ImagePlatforms: make([]PlatformJob, 0, len(r.ImagePlatforms)+len(other.ImagePlatforms)),
	}
	merged.Images = append(append(merged.Images, r.Images...), other.Images...)
	merged.ImagePlatforms = append(append(merged.ImagePlatforms, r.ImagePlatforms...), other.ImagePlatforms...)
	return merged
}
