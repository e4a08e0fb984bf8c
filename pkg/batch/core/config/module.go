package config

import "go.uber.org/fx"

// LoaderParams defines the optional inputs of NewLoaderProvider.
type LoaderParams struct {
	fx.In
	ResourcePath string              `name:"configResourcePath" optional:"true"`
	EnvFilePath  string              `name:"envFilePath" optional:"true"`
	Expander     EnvironmentExpander `optional:"true"`
}

// NewLoaderProvider is an Fx provider for *Loader.
func NewLoaderProvider(p LoaderParams) *Loader {
	var opts []LoaderOption
	if p.ResourcePath != "" {
		opts = append(opts, WithResourcePath(p.ResourcePath))
	}
	if p.EnvFilePath != "" {
		opts = append(opts, WithEnvFile(p.EnvFilePath))
	}
	if p.Expander != nil {
		opts = append(opts, WithExpander(p.Expander))
	}
	return NewLoader(opts...)
}

// Module provides the configuration loader to Fx.
var Module = fx.Options(
	fx.Provide(NewLoaderProvider),
)
