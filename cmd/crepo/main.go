package main

import (
	"fmt"
	"os"

	"crepo/internal/app"
	"crepo/internal/config"
	"crepo/internal/model"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a RepoApp. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.RepoApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewRepoApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// filterFlags registers the version-selection flags shared by get/delete
// style commands.
func filterFlags(cmd *cobra.Command) {
	cmd.Flags().Int("version", -1, "Select a specific version number")
	cmd.Flags().String("tag", "", "Select by tag")
	cmd.Flags().String("version-checksum", "", "Select by version checksum")
}

func getFilterFlags(cmd *cobra.Command) (int, string, string) {
	version, _ := cmd.Flags().GetInt("version")
	tag, _ := cmd.Flags().GetString("tag")
	checksum, _ := cmd.Flags().GetString("version-checksum")
	return version, tag, checksum
}

func printObject(o *model.Object) {
	fmt.Printf("%s/%s  v%d  %s  %d bytes  %s\n",
		o.BucketName, o.Key, o.VersionNumber, o.Status, o.Size,
		o.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("  checksum:         %s\n", o.Checksum)
	fmt.Printf("  version checksum: %s\n", o.VersionChecksum)
	if o.ContentType != "" {
		fmt.Printf("  content type:     %s\n", o.ContentType)
	}
	if o.DownloadName != "" {
		fmt.Printf("  download name:    %s\n", o.DownloadName)
	}
	if o.Tag != "" {
		fmt.Printf("  tag:              %s\n", o.Tag)
	}
}

func printCollection(c *model.Collection) {
	fmt.Printf("%s/%s  v%d  %s  %d member(s)  %s\n",
		c.BucketName, c.Key, c.VersionNumber, c.Status, len(c.Objects),
		c.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("  version checksum: %s\n", c.VersionChecksum)
	if c.Tag != "" {
		fmt.Printf("  tag:              %s\n", c.Tag)
	}
	for _, o := range c.Objects {
		fmt.Printf("  - %s  v%d  %s\n", o.Key, o.VersionNumber, o.VersionChecksum[:12])
	}
}

var rootCmd = &cobra.Command{
	Use:   "crepo",
	Short: "Versioned content-addressed object repository",
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Store:      %s\n", cfg.Store.Type)
		fmt.Printf("Metadata:   %s\n", cfg.Metadata.Type)
		if cfg.Encryption.Type != "" {
			fmt.Printf("Encryption: %s\n", cfg.Encryption.Type)
		}
		return nil
	},
}

// bucket commands

var bucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Manage buckets",
}

var bucketCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creationDate, _ := cmd.Flags().GetString("creation-date")

		a, err := newApp("CreateBucket")
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.CreateBucket(args[0], creationDate)
		if err != nil {
			return err
		}
		fmt.Printf("Created bucket %s\n", b.Name)
		return nil
	},
}

var bucketDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete an empty bucket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("DeleteBucket")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteBucket(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted bucket %s\n", args[0])
		return nil
	},
}

var bucketListCmd = &cobra.Command{
	Use:   "list",
	Short: "List buckets",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListBuckets")
		if err != nil {
			return err
		}
		defer a.Close()

		buckets, err := a.ListBuckets()
		if err != nil {
			return err
		}
		if len(buckets) == 0 {
			fmt.Println("No buckets.")
			return nil
		}
		for _, b := range buckets {
			fmt.Printf("%s  created %s\n", b.Name, b.CreationDate.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var bucketInfoCmd = &cobra.Command{
	Use:   "info NAME",
	Short: "View bucket usage",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetBucketInfo")
		if err != nil {
			return err
		}
		defer a.Close()

		b, usage, err := a.GetBucketInfo(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Bucket:      %s\n", b.Name)
		fmt.Printf("Created:     %s\n", b.CreationDate.Format("2006-01-02 15:04:05"))
		fmt.Printf("Objects:     %d active, %d total\n", usage.ActiveObjects, usage.TotalObjects)
		fmt.Printf("Collections: %d total\n", usage.TotalCollections)
		return nil
	},
}

// object commands

var objectCmd = &cobra.Command{
	Use:   "object",
	Short: "Manage objects",
}

var objectPutCmd = &cobra.Command{
	Use:   "put BUCKET KEY [FILE]",
	Short: "Create an object version",
	Long: `Create an object version from FILE. Without FILE, the latest version's
content is reused and only metadata changes.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, _ := cmd.Flags().GetString("method")
		contentType, _ := cmd.Flags().GetString("content-type")
		downloadName, _ := cmd.Flags().GetString("download-name")
		tag, _ := cmd.Flags().GetString("tag")
		timestamp, _ := cmd.Flags().GetString("timestamp")
		creationDate, _ := cmd.Flags().GetString("creation-date")

		a, err := newApp("CreateObject")
		if err != nil {
			return err
		}
		defer a.Close()

		filePath := ""
		if len(args) == 3 {
			filePath = args[2]
		}

		obj, err := a.PutObject(method, args[0], args[1], filePath, contentType, downloadName, tag, timestamp, creationDate)
		if err != nil {
			return err
		}
		printObject(obj)
		return nil
	},
}

var objectGetCmd = &cobra.Command{
	Use:   "get BUCKET KEY",
	Short: "View object metadata",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, tag, checksum := getFilterFlags(cmd)

		a, err := newApp("GetObject")
		if err != nil {
			return err
		}
		defer a.Close()

		obj, err := a.GetObject(args[0], args[1], version, tag, checksum)
		if err != nil {
			return err
		}
		printObject(obj)
		return nil
	},
}

var objectFetchCmd = &cobra.Command{
	Use:   "fetch BUCKET KEY",
	Short: "Download object content",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, tag, checksum := getFilterFlags(cmd)
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp("GetObjectContent")
		if err != nil {
			return err
		}
		defer a.Close()

		var w *os.File = os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		obj, err := a.FetchObjectContent(args[0], args[1], version, tag, checksum, w)
		if err != nil {
			return err
		}
		if output != "" {
			fmt.Printf("Wrote %d bytes to %s\n", obj.Size, output)
		}
		return nil
	},
}

var objectURLCmd = &cobra.Command{
	Use:   "url BUCKET KEY",
	Short: "View direct download URLs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, tag, checksum := getFilterFlags(cmd)

		a, err := newApp("GetRedirectURLs")
		if err != nil {
			return err
		}
		defer a.Close()

		urls, err := a.GetObjectURLs(args[0], args[1], version, tag, checksum)
		if err != nil {
			return err
		}
		if len(urls) == 0 {
			fmt.Println("Store does not serve direct URLs.")
			return nil
		}
		for _, u := range urls {
			fmt.Println(u)
		}
		return nil
	},
}

var objectListCmd = &cobra.Command{
	Use:   "list [BUCKET]",
	Short: "List object versions",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")
		includeDeleted, _ := cmd.Flags().GetBool("deleted")
		tag, _ := cmd.Flags().GetString("tag")

		a, err := newApp("ListObjects")
		if err != nil {
			return err
		}
		defer a.Close()

		bucket := ""
		if len(args) > 0 {
			bucket = args[0]
		}

		objects, err := a.ListObjects(bucket, offset, limit, includeDeleted, tag)
		if err != nil {
			return err
		}
		if len(objects) == 0 {
			fmt.Println("No objects.")
			return nil
		}
		for _, o := range objects {
			fmt.Printf("%s/%s  v%d  %-7s  %d bytes  %s\n",
				o.BucketName, o.Key, o.VersionNumber, o.Status, o.Size,
				o.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var objectLogCmd = &cobra.Command{
	Use:   "log BUCKET KEY",
	Short: "View object version history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetObjectVersions")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.GetObjectVersions(args[0], args[1])
		if err != nil {
			return err
		}
		for _, o := range versions {
			fmt.Printf("v%-4d  %-7s  %s  %d bytes  %s\n",
				o.VersionNumber, o.Status, o.Checksum[:12], o.Size,
				o.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var objectDeleteCmd = &cobra.Command{
	Use:   "delete BUCKET KEY",
	Short: "Soft-delete an object version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, tag, checksum := getFilterFlags(cmd)

		a, err := newApp("DeleteObject")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteObject(args[0], args[1], version, tag, checksum); err != nil {
			return err
		}
		fmt.Printf("Deleted object %s/%s\n", args[0], args[1])
		return nil
	},
}

// collection commands

var collectionCmd = &cobra.Command{
	Use:     "collection",
	Aliases: []string{"coll"},
	Short:   "Manage collections",
}

var collectionCreateCmd = &cobra.Command{
	Use:   "create BUCKET KEY",
	Short: "Create a collection version",
	Long: `Create a collection version from member references. Each --member is
"key" (latest version) or "key@versionChecksum" (a pinned version).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, _ := cmd.Flags().GetString("method")
		tag, _ := cmd.Flags().GetString("tag")
		members, _ := cmd.Flags().GetStringArray("member")
		timestamp, _ := cmd.Flags().GetString("timestamp")
		creationDate, _ := cmd.Flags().GetString("creation-date")

		a, err := newApp("CreateCollection")
		if err != nil {
			return err
		}
		defer a.Close()

		coll, err := a.CreateCollection(method, args[0], args[1], tag, members, timestamp, creationDate)
		if err != nil {
			return err
		}
		printCollection(coll)
		return nil
	},
}

var collectionGetCmd = &cobra.Command{
	Use:   "get BUCKET KEY",
	Short: "View a collection version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, tag, checksum := getFilterFlags(cmd)

		a, err := newApp("GetCollection")
		if err != nil {
			return err
		}
		defer a.Close()

		coll, err := a.GetCollection(args[0], args[1], version, tag, checksum)
		if err != nil {
			return err
		}
		printCollection(coll)
		return nil
	},
}

var collectionListCmd = &cobra.Command{
	Use:   "list BUCKET",
	Short: "List collection versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		offset, _ := cmd.Flags().GetInt("offset")
		limit, _ := cmd.Flags().GetInt("limit")
		includeDeleted, _ := cmd.Flags().GetBool("deleted")
		tag, _ := cmd.Flags().GetString("tag")

		a, err := newApp("ListCollections")
		if err != nil {
			return err
		}
		defer a.Close()

		collections, err := a.ListCollections(args[0], offset, limit, includeDeleted, tag)
		if err != nil {
			return err
		}
		if len(collections) == 0 {
			fmt.Println("No collections.")
			return nil
		}
		for _, c := range collections {
			fmt.Printf("%s/%s  v%d  %-7s  %d member(s)  %s\n",
				c.BucketName, c.Key, c.VersionNumber, c.Status, len(c.Objects),
				c.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var collectionLogCmd = &cobra.Command{
	Use:   "log BUCKET KEY",
	Short: "View collection version history",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("GetCollectionVersions")
		if err != nil {
			return err
		}
		defer a.Close()

		versions, err := a.GetCollectionVersions(args[0], args[1])
		if err != nil {
			return err
		}
		for _, c := range versions {
			fmt.Printf("v%-4d  %-7s  %d member(s)  %s\n",
				c.VersionNumber, c.Status, len(c.Objects),
				c.Timestamp.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var collectionDeleteCmd = &cobra.Command{
	Use:   "delete BUCKET KEY",
	Short: "Soft-delete a collection version",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, tag, checksum := getFilterFlags(cmd)

		a, err := newApp("DeleteCollection")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteCollection(args[0], args[1], version, tag, checksum); err != nil {
			return err
		}
		fmt.Printf("Deleted collection %s/%s\n", args[0], args[1])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// bucket subcommands
	bucketCmd.AddCommand(bucketCreateCmd)
	bucketCreateCmd.Flags().String("creation-date", "", "Original creation time (RFC3339) for migrated data")
	bucketCmd.AddCommand(bucketDeleteCmd)
	bucketCmd.AddCommand(bucketListCmd)
	bucketCmd.AddCommand(bucketInfoCmd)

	// object subcommands
	objectCmd.AddCommand(objectPutCmd)
	objectPutCmd.Flags().String("method", "auto", "Creation method: new, version, or auto")
	objectPutCmd.Flags().String("content-type", "", "Content type of the object")
	objectPutCmd.Flags().String("download-name", "", "Suggested filename on download")
	objectPutCmd.Flags().String("tag", "", "Tag for this version")
	objectPutCmd.Flags().String("timestamp", "", "Version time (RFC3339) for migrated data")
	objectPutCmd.Flags().String("creation-date", "", "Original creation time (RFC3339) for migrated data")
	objectCmd.AddCommand(objectGetCmd)
	filterFlags(objectGetCmd)
	objectCmd.AddCommand(objectFetchCmd)
	filterFlags(objectFetchCmd)
	objectFetchCmd.Flags().StringP("output", "o", "", "Write content to file instead of stdout")
	objectCmd.AddCommand(objectURLCmd)
	filterFlags(objectURLCmd)
	objectCmd.AddCommand(objectListCmd)
	objectListCmd.Flags().Int("offset", 0, "Pagination offset")
	objectListCmd.Flags().Int("limit", 0, "Pagination limit (0 = default)")
	objectListCmd.Flags().Bool("deleted", false, "Include soft-deleted versions")
	objectListCmd.Flags().String("tag", "", "Only versions with this tag")
	objectCmd.AddCommand(objectLogCmd)
	objectCmd.AddCommand(objectDeleteCmd)
	filterFlags(objectDeleteCmd)

	// collection subcommands
	collectionCmd.AddCommand(collectionCreateCmd)
	collectionCreateCmd.Flags().String("method", "auto", "Creation method: new, version, or auto")
	collectionCreateCmd.Flags().String("tag", "", "Tag for this version")
	collectionCreateCmd.Flags().StringArray("member", nil, "Member reference: key or key@versionChecksum (repeatable)")
	collectionCreateCmd.Flags().String("timestamp", "", "Version time (RFC3339) for migrated data")
	collectionCreateCmd.Flags().String("creation-date", "", "Original creation time (RFC3339) for migrated data")
	collectionCmd.AddCommand(collectionGetCmd)
	filterFlags(collectionGetCmd)
	collectionCmd.AddCommand(collectionListCmd)
	collectionListCmd.Flags().Int("offset", 0, "Pagination offset")
	collectionListCmd.Flags().Int("limit", 0, "Pagination limit (0 = default)")
	collectionListCmd.Flags().Bool("deleted", false, "Include soft-deleted versions")
	collectionListCmd.Flags().String("tag", "", "Only versions with this tag")
	collectionCmd.AddCommand(collectionLogCmd)
	collectionCmd.AddCommand(collectionDeleteCmd)
	filterFlags(collectionDeleteCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(bucketCmd)
	rootCmd.AddCommand(objectCmd)
	rootCmd.AddCommand(collectionCmd)
}
