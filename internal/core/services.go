package core

type Services struct {
	InstalledApp *InstalledAppService
	Catalog      *CatalogService
}

func NewServices(db DB) *Services {
	return &Services{
		InstalledApp: NewInstalledAppService(db),
		Catalog:      NewCatalogService(db),
	}
}
