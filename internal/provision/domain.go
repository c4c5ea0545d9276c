package provision

import "strings"

// Plan describes a purchasable hosting offer. The egg, image and startup
// command drive the remote panel install, so a new game is a catalog entry
// rather than a code change.
type Plan struct {
	Slug        string            `json:"slug"`
	Name        string            `json:"name"`
	Game        string            `json:"game"`
	Price       float64           `json:"price"`
	RAMMB       int               `json:"ramMb"`
	DiskMB      int               `json:"diskMb"`
	CPU         int               `json:"cpu"`
	EggID       int64             `json:"-"`
	DockerImage string            `json:"-"`
	Startup     string            `json:"-"`
	Environment map[string]string `json:"-"`
}

// Catalog holds the plans on offer, looked up by slug.
type Catalog struct {
	plans []Plan
}

// NewCatalog builds a catalog from the given plans.
func NewCatalog(plans []Plan) *Catalog {
	return &Catalog{plans: plans}
}

// Plans returns the catalog in display order.
func (c *Catalog) Plans() []Plan {
	return c.plans
}

// Find looks a plan up by slug, case-insensitively.
func (c *Catalog) Find(slug string) (Plan, bool) {
	for _, plan := range c.plans {
		if strings.EqualFold(plan.Slug, slug) {
			return plan, true
		}
	}
	return Plan{}, false
}

// DefaultCatalog is the stock offer set.
func DefaultCatalog() *Catalog {
	minecraftEnv := map[string]string{
		"SERVER_JARFILE":    "server.jar",
		"MINECRAFT_VERSION": "latest",
		"BUILD_NUMBER":      "latest",
	}
	return NewCatalog([]Plan{
		{
			Slug: "mc-dirt", Name: "Dirt", Game: "minecraft",
			Price: 3.00, RAMMB: 2048, DiskMB: 10240, CPU: 100,
			EggID: 1, DockerImage: "ghcr.io/pterodactyl/yolks:java_17",
			Startup:     "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar {{SERVER_JARFILE}}",
			Environment: minecraftEnv,
		},
		{
			Slug: "mc-iron", Name: "Iron", Game: "minecraft",
			Price: 6.00, RAMMB: 4096, DiskMB: 20480, CPU: 200,
			EggID: 1, DockerImage: "ghcr.io/pterodactyl/yolks:java_17",
			Startup:     "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar {{SERVER_JARFILE}}",
			Environment: minecraftEnv,
		},
		{
			Slug: "mc-diamond", Name: "Diamond", Game: "minecraft",
			Price: 12.00, RAMMB: 8192, DiskMB: 40960, CPU: 400,
			EggID: 1, DockerImage: "ghcr.io/pterodactyl/yolks:java_21",
			Startup:     "java -Xms128M -Xmx{{SERVER_MEMORY}}M -jar {{SERVER_JARFILE}}",
			Environment: minecraftEnv,
		},
		{
			Slug: "rust-scrap", Name: "Scrap", Game: "rust",
			Price: 10.00, RAMMB: 8192, DiskMB: 30720, CPU: 300,
			EggID: 4, DockerImage: "ghcr.io/pterodactyl/games:rust",
			Startup:     "./RustDedicated -batchmode +server.port {{SERVER_PORT}} +server.maxplayers {{MAX_PLAYERS}}",
			Environment: map[string]string{"MAX_PLAYERS": "60", "LEVEL": "Procedural Map"},
		},
		{
			Slug: "tf2-scout", Name: "Scout", Game: "teamfortress2",
			Price: 5.00, RAMMB: 2048, DiskMB: 15360, CPU: 150,
			EggID: 7, DockerImage: "ghcr.io/pterodactyl/games:source",
			Startup:     "./srcds_run -game tf -console -port {{SERVER_PORT}} +map {{SRCDS_MAP}}",
			Environment: map[string]string{"SRCDS_MAP": "ctf_2fort", "SRCDS_APPID": "232250"},
		},
	})
}
