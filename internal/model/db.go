package model

import "gorm.io/gorm"

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&RenderedArtifact{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&ShareLink{}); err != nil {
		return err
	}

	if err := db.AutoMigrate(&ArtifactBlob{}); err != nil {
		return err
	}

	return nil
}
